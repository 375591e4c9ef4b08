// Package hub keeps track of websocket sessions and the rooms they watch,
// and delivers events from the bus to the matching sessions.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/bus"
	"github.com/akshat-collab/code-battle-arena/internal/stats"
	"github.com/cenkalti/backoff/v4"
)

const (
	metricActiveClients = "active_clients"
	metricActiveTopics  = "active_topics"
)

// RoomFinder reports whether a room exists before a session may watch it.
type RoomFinder interface {
	RoomExists(ctx context.Context, roomId string) (bool, error)
}

type RoomFinderFunc func(ctx context.Context, roomId string) (bool, error)

func (f RoomFinderFunc) RoomExists(ctx context.Context, roomId string) (bool, error) {
	return f(ctx, roomId)
}

type Hub struct {
	log             *log.Logger
	bus             bus.Bus
	rooms           RoomFinder
	stats           stats.StatsProvider
	clients         map[*Client]struct{}
	clientsLock     sync.Mutex
	topics          map[string]*topic
	subscribeChan   chan *ClientMessage
	unsubscribeChan chan *ClientMessage
	registerChan    chan *Client
	deRegisterChan  chan *Client
	deliverChan     chan bus.Envelope
	unloadTopicChan chan string
	stop            chan struct{}
	stopOnce        sync.Once
	done            chan struct{}
}

func NewHub(logger *log.Logger, b bus.Bus, rooms RoomFinder, su stats.StatsProvider) *Hub {
	su.RegisterMetric(metricActiveClients)
	su.RegisterMetric(metricActiveTopics)

	return &Hub{
		log:             logger,
		bus:             b,
		rooms:           rooms,
		stats:           su,
		clients:         make(map[*Client]struct{}),
		topics:          make(map[string]*topic),
		subscribeChan:   make(chan *ClientMessage, 256),
		unsubscribeChan: make(chan *ClientMessage, 256),
		registerChan:    make(chan *Client),
		deRegisterChan:  make(chan *Client),
		deliverChan:     make(chan bus.Envelope, 1024),
		unloadTopicChan: make(chan string, 64),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Run consumes the bus and serves session requests until ctx is done or
// Shutdown is called.
func (h *Hub) Run(ctx context.Context) {
	busCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.consume(busCtx)

	for {
		select {
		case msg := <-h.subscribeChan:
			h.handleSubscribe(msg)
		case msg := <-h.unsubscribeChan:
			h.handleUnsubscribe(msg)
		case c := <-h.registerChan:
			h.log.Printf("adding connection %s from %q", c.id, c.user.Username)
			h.addClient(c)
		case c := <-h.deRegisterChan:
			h.log.Printf("removing connection %s from %q", c.id, c.user.Username)
			h.removeClient(c)
		case env := <-h.deliverChan:
			h.handleDeliver(env)
		case id := <-h.unloadTopicChan:
			h.unloadTopic(id)
		case <-ctx.Done():
			h.shutdownTopics()
			return
		case <-h.stop:
			h.shutdownTopics()
			return
		}
	}
}

// consume keeps the bus subscription alive, resubscribing with backoff
// when the bus drops.
func (h *Hub) consume(ctx context.Context) {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := h.bus.Run(ctx, h.receive)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = bus.ErrClosed
		}
		return err
	}, backoff.WithContext(eb, ctx), func(err error, next time.Duration) {
		h.log.Printf("bus consumer stopped: %v, resubscribing in %s", err, next)
	})
	if err != nil && ctx.Err() == nil {
		h.log.Println("bus consumer exited:", err)
	}
}

func (h *Hub) receive(env bus.Envelope) {
	select {
	case h.deliverChan <- env:
	case <-h.done:
	}
}

// Publish sends a room event to every session subscribed to roomId on any
// instance.
func (h *Hub) Publish(ctx context.Context, roomId string, ev Event) error {
	ev.RoomId = roomId
	return h.publish(ctx, roomId, ev)
}

// PublishGlobal sends an event to every connected session.
func (h *Hub) PublishGlobal(ctx context.Context, ev Event) error {
	return h.publish(ctx, "", ev)
}

func (h *Hub) publish(ctx context.Context, scope string, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = Now()
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Name, err)
	}

	env := bus.Envelope{RoomId: scope, Event: raw}
	if err := h.bus.Publish(ctx, env); err != nil {
		// other instances miss this one but local sessions still get it
		h.receive(env)
		return fmt.Errorf("publish %s event: %w", ev.Name, err)
	}

	return nil
}

// Register starts tracking a connected session.
func (h *Hub) Register(c *Client) {
	select {
	case h.registerChan <- c:
	case <-h.done:
	}
}

// Subscribe asks the hub to deliver roomId events to c.
func (h *Hub) Subscribe(c *Client, id int, roomId string) {
	h.enqueue(h.subscribeChan, &ClientMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Subscribe:   &Subscribe{RoomId: roomId},
		client:      c,
	})
}

// Unsubscribe stops delivering roomId events to c. It has no effect on
// room membership.
func (h *Hub) Unsubscribe(c *Client, id int, roomId string) {
	h.enqueue(h.unsubscribeChan, &ClientMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Unsubscribe: &Unsubscribe{RoomId: roomId},
		client:      c,
	})
}

func (h *Hub) enqueue(ch chan *ClientMessage, msg *ClientMessage) {
	select {
	case ch <- msg:
	default:
		h.log.Println("hub request channel full")
		msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (h *Hub) deRegister(c *Client) {
	select {
	case h.deRegisterChan <- c:
	case <-h.done:
	}
}

func (h *Hub) handleSubscribe(msg *ClientMessage) {
	roomId := msg.Subscribe.RoomId
	t, ok := h.topics[roomId]
	if !ok {
		t = newTopic(roomId, h)
		h.topics[roomId] = t
		h.stats.Incr(metricActiveTopics)
		go t.start()
	}

	t.addClient(msg.client)
	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{"room_id": roomId}))
}

func (h *Hub) handleUnsubscribe(msg *ClientMessage) {
	roomId := msg.Unsubscribe.RoomId
	if t, ok := h.topics[roomId]; ok {
		t.removeClient(msg.client)
	}

	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{"room_id": roomId}))
}

func (h *Hub) handleDeliver(env bus.Envelope) {
	msg := eventMessage(env.Event)

	if env.Global() {
		for _, c := range h.getClients() {
			c.queueMessage(msg)
		}
		return
	}

	t, ok := h.topics[env.RoomId]
	if !ok {
		// nobody on this instance watches the room
		return
	}

	select {
	case t.deliverChan <- msg:
	default:
		h.log.Printf("deliver channel full on topic %q, dropping event", t.id)
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; !ok {
		h.clients[c] = struct{}{}
		h.stats.Incr(metricActiveClients)
	}
}

func (h *Hub) removeClient(c *Client) {
	for _, roomId := range c.topicIds() {
		if t, ok := h.topics[roomId]; ok {
			t.removeClient(c)
		}
	}

	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.stats.Decr(metricActiveClients)
	}
}

func (h *Hub) getClients() []*Client {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// unloadTopic stops an idle topic. A topic that gained a subscriber after
// its idle timer fired is kept.
func (h *Hub) unloadTopic(roomId string) {
	t, ok := h.topics[roomId]
	if !ok || t.clientCount() > 0 {
		return
	}

	h.log.Printf("unloading topic %q", roomId)
	delete(h.topics, roomId)
	h.stats.Decr(metricActiveTopics)
	close(t.exit)
	<-t.done
}

func (h *Hub) shutdownTopics() {
	h.log.Println("shutting down topics")
	for id, t := range h.topics {
		close(t.exit)
		<-t.done
		delete(h.topics, id)
		h.stats.Decr(metricActiveTopics)
	}

	close(h.done)
}

// Shutdown stops every session and waits for Run to return.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("received shutdown signal")
	for _, c := range h.getClients() {
		c.stopClient()
	}

	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
