package hub

import (
	"log"
	"sync"
	"time"
)

const idleTopicTimeout = time.Second * 5

// topic fans one room's events out to the local sessions watching it.
// Membership is changed by the hub goroutine; delivery runs here.
type topic struct {
	id          string
	hub         *Hub
	log         *log.Logger
	deliverChan chan *ServerMessage
	clients     map[*Client]struct{}
	clientLock  sync.RWMutex
	// killTimer unloads the topic once nobody has watched it for a while
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newTopic(id string, h *Hub) *topic {
	t := &topic{
		id:          id,
		hub:         h,
		log:         h.log,
		deliverChan: make(chan *ServerMessage, 256),
		clients:     make(map[*Client]struct{}),
		killTimer:   time.NewTimer(idleTopicTimeout),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	t.killTimer.Stop()

	return t
}

func (t *topic) start() {
	t.log.Printf("starting topic %q", t.id)
	defer close(t.done)

	for {
		select {
		case msg := <-t.deliverChan:
			t.broadcast(msg)
		case <-t.killTimer.C:
			t.log.Printf("topic %q idle", t.id)
			select {
			case t.hub.unloadTopicChan <- t.id:
			case <-t.exit:
				t.handleExit()
				return
			}
		case <-t.exit:
			t.handleExit()
			return
		}
	}
}

func (t *topic) handleExit() {
	t.log.Printf("topic %q is exiting", t.id)

	t.clientLock.Lock()
	defer t.clientLock.Unlock()

	for c := range t.clients {
		c.delTopic(t.id)
	}
	t.clients = make(map[*Client]struct{})
	t.killTimer.Stop()
}

func (t *topic) addClient(c *Client) {
	t.clientLock.Lock()
	defer t.clientLock.Unlock()

	t.killTimer.Stop()
	t.clients[c] = struct{}{}
	c.addTopic(t.id)
}

func (t *topic) removeClient(c *Client) {
	t.clientLock.Lock()
	defer t.clientLock.Unlock()

	if _, ok := t.clients[c]; !ok {
		return
	}

	delete(t.clients, c)
	c.delTopic(t.id)

	if len(t.clients) == 0 {
		t.log.Printf("no clients in %q, starting kill timer", t.id)
		t.killTimer.Reset(idleTopicTimeout)
	}
}

func (t *topic) clientCount() int {
	t.clientLock.RLock()
	defer t.clientLock.RUnlock()

	return len(t.clients)
}

func (t *topic) broadcast(msg *ServerMessage) {
	t.clientLock.RLock()
	defer t.clientLock.RUnlock()

	for c := range t.clients {
		c.queueMessage(msg)
	}
}
