package hub

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseConstructors(t *testing.T) {
	tcases := []struct {
		name   string
		msg    *ServerMessage
		id     int
		status int
		err    string
	}{
		{"ok", NoErrOK(1, nil), 1, http.StatusOK, ""},
		{"room not found", ErrRoomNotFound(2), 2, http.StatusNotFound, "room not found"},
		{"service unavailable", ErrServiceUnavailable(3), 3, http.StatusServiceUnavailable, "service unavailable"},
		{"invalid message", ErrInvalidMessage(4), 4, http.StatusBadRequest, "invalid message format"},
		{"invalid message without id", ErrInvalidMessage(-1), 0, http.StatusBadRequest, "invalid message format"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.msg.Response)
			assert.Equal(t, tc.id, tc.msg.Id)
			assert.Equal(t, tc.status, tc.msg.Response.ResponseCode)
			assert.Equal(t, tc.err, tc.msg.Response.Error)
			assert.False(t, tc.msg.Timestamp.IsZero())
		})
	}
}

func TestEventMessageEmbedsRawEvent(t *testing.T) {
	raw := json.RawMessage(`{"name":"leaderboard-update","room_id":"r1","seq_id":4,"timestamp":"2024-01-01T00:00:00Z"}`)

	out, err := json.Marshal(eventMessage(raw))
	require.NoError(t, err)

	var decoded struct {
		Event Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, EventLeaderboardUpdate, decoded.Event.Name)
	assert.Equal(t, int64(4), decoded.Event.SeqId)
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}
