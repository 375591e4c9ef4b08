package arena

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/akshat-collab/code-battle-arena/internal/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordedEvent struct {
	global bool
	event  hub.Event
}

// recordingHub keeps every published event in order.
type recordingHub struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (h *recordingHub) Publish(_ context.Context, roomId string, ev hub.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev.RoomId = roomId
	h.events = append(h.events, recordedEvent{event: ev})
	return h.err
}

func (h *recordingHub) PublishGlobal(_ context.Context, ev hub.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, recordedEvent{global: true, event: ev})
	return h.err
}

func (h *recordingHub) all() []recordedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]recordedEvent(nil), h.events...)
}

func (h *recordingHub) names(roomId string) []string {
	var names []string
	for _, e := range h.all() {
		if !e.global && e.event.RoomId == roomId {
			names = append(names, e.event.Name)
		}
	}
	return names
}

func (h *recordingHub) last(t *testing.T, name string) hub.Event {
	t.Helper()

	events := h.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].event.Name == name {
			return events[i].event
		}
	}
	t.Fatalf("no %s event published", name)
	return hub.Event{}
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// stubJudge returns a fixed verdict. With block set it waits for its
// context to end, or forever when ignoreCtx is set too.
type stubJudge struct {
	verdict   judge.Verdict
	err       error
	block     bool
	ignoreCtx bool
	calls     atomic.Int32
}

func (j *stubJudge) Judge(ctx context.Context, _, _, _ string) (judge.Verdict, error) {
	j.calls.Add(1)

	if j.block {
		if j.ignoreCtx {
			select {}
		}
		<-ctx.Done()
		return judge.Verdict{}, ctx.Err()
	}
	return j.verdict, j.err
}

type fixture struct {
	m     *Manager
	store *database.MemoryArenaRepository
	hub   *recordingHub
	clock *testClock
	judge *stubJudge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := testutil.TestLogger(t)
	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := database.NewMemoryArenaRepository()
	store.Now = clock.Now

	f := &fixture{
		store: store,
		hub:   &recordingHub{},
		clock: clock,
		judge: &stubJudge{verdict: judge.Verdict{Status: types.SubmissionAccepted, Score: 100, Output: "ok"}},
	}
	f.m = NewManager(store, f.hub, f.judge, users.NewResolver(store, nil, logger), logger, Options{
		Now:          clock.Now,
		JudgeTimeout: 100 * time.Millisecond,
		BcryptCost:   bcrypt.MinCost,
	})

	return f
}

func (f *fixture) user(t *testing.T, name string) types.User {
	t.Helper()

	u, err := f.m.EnsureUser(context.Background(), "ext-"+name, name, "")
	require.NoError(t, err)
	return u
}

func (f *fixture) room(t *testing.T, creator types.User, max int) types.Room {
	t.Helper()

	room, err := f.m.CreateRoom(context.Background(), CreateRoomParams{
		Name:             "Weekly Contest",
		MaxParticipants:  max,
		TimeLimitSeconds: 60,
		CreatorId:        creator.Id,
	})
	require.NoError(t, err)
	return room
}

// decode re-encodes an event payload into out the way a subscriber sees it.
func decode(t *testing.T, ev hub.Event, out any) {
	t.Helper()

	raw, err := json.Marshal(ev.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
