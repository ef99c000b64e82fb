// Package stream consumes the bundler's push notification socket. A single
// multiplexed connection delivers terminal transaction outcomes; the engine
// owns exactly one Notifier and the executor awaits individual transaction
// ids on it.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
)

// Status is a terminal transaction outcome.
type Status string

const (
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Event is one framed notification from the bundler stream.
type Event struct {
	TxID   string          `json:"transactionId"`
	Status Status          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// Notifier owns the websocket connection and a typed waiter registry keyed
// by transaction id.
type Notifier struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	waiters map[string]chan Event
	// recent retains outcomes that arrived before their waiter registered,
	// covering the window between submission response and Await.
	recent    map[string]Event
	recentCap int
	closed    bool
	done      chan struct{}
}

// NewNotifier builds a notifier for the bundler's stream endpoint.
func NewNotifier(bundlerURL string) *Notifier {
	wsURL := strings.Replace(strings.Replace(strings.TrimSuffix(bundlerURL, "/"), "https://", "wss://", 1), "http://", "ws://", 1) + "/ws"
	return &Notifier{
		url:       wsURL,
		waiters:   make(map[string]chan Event),
		recent:    make(map[string]Event),
		recentCap: 256,
		done:      make(chan struct{}),
	}
}

// Open dials the stream and starts the read loop. The loop re-establishes
// the connection with backoff on disconnect until Close is called. Opening
// again after Close begins a fresh session with clean waiter state.
func (n *Notifier) Open(ctx context.Context) error {
	conn, err := n.dial(ctx)
	if err != nil {
		return err
	}
	n.mu.Lock()
	if n.closed {
		n.closed = false
		n.done = make(chan struct{})
		n.waiters = make(map[string]chan Event)
		n.recent = make(map[string]Event)
	}
	n.conn = conn
	done := n.done
	n.mu.Unlock()

	go n.readLoop(ctx, done, conn)
	return nil
}

// Close shuts the connection down and releases all waiters with a failed
// event so no Await blocks past engine shutdown.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.done)
	if n.conn != nil {
		_ = n.conn.Close()
	}
	for id, ch := range n.waiters {
		close(ch)
		delete(n.waiters, id)
	}
}

// Register installs a waiter for txID. The returned channel receives exactly
// one event. If the outcome already arrived it is delivered immediately.
func (n *Notifier) Register(txID string) <-chan Event {
	ch := make(chan Event, 1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	if ev, ok := n.recent[txID]; ok {
		delete(n.recent, txID)
		ch <- ev
		return ch
	}
	n.waiters[txID] = ch
	return ch
}

// Unregister removes a waiter that will no longer be awaited.
func (n *Notifier) Unregister(txID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.waiters, txID)
}

// Await blocks until txID reaches a terminal status, the timeout elapses, or
// the context is cancelled. A timeout resolves locally as failed with
// on-chain state unknown.
func (n *Notifier) Await(ctx context.Context, txID string, timeout time.Duration) (Event, error) {
	ch := n.Register(txID)
	defer n.Unregister(txID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-ch:
		if !ok {
			return Event{}, agenterr.ErrCancelled.Wrap("notifier closed")
		}
		return ev, nil
	case <-timer.C:
		return Event{}, agenterr.ErrExecutionTimeout.Wrapf("tx %s: no notification within %s", txID, timeout)
	case <-ctx.Done():
		return Event{}, agenterr.ErrCancelled.Wrapf("%v", ctx.Err())
	}
}

// Deliver injects an event as if it had arrived on the socket. The dry-run
// executor and tests use it; the read loop uses the same path.
func (n *Notifier) Deliver(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.waiters[ev.TxID]; ok {
		delete(n.waiters, ev.TxID)
		ch <- ev
		return
	}
	if len(n.recent) >= n.recentCap {
		// Drop an arbitrary stale entry; outcomes this old have timed out.
		for id := range n.recent {
			delete(n.recent, id)
			break
		}
	}
	n.recent[ev.TxID] = ev
}

func (n *Notifier) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return nil, agenterr.ErrTransport.Wrapf("dial %s: %v", n.url, err)
	}
	return conn, nil
}

// readLoop pumps one session. done and conn belong to the Open call that
// started the loop; a loop from a prior session never touches a later
// session's connection.
func (n *Notifier) readLoop(ctx context.Context, done chan struct{}, conn *websocket.Conn) {
	backoff := time.Second
	for {
		var ev Event
		err := conn.ReadJSON(&ev)
		if err == nil {
			if ev.TxID != "" {
				n.Deliver(ev)
			}
			backoff = time.Second
			continue
		}

		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}

		log.WithError(err).Warn("Notification stream disconnected, reconnecting")
		_ = conn.Close()
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}

		next, dialErr := n.dial(ctx)
		if dialErr != nil {
			log.WithError(dialErr).Warn("Notification stream reconnect failed")
			continue
		}
		n.mu.Lock()
		select {
		case <-done:
			n.mu.Unlock()
			_ = next.Close()
			return
		default:
		}
		n.conn = next
		n.mu.Unlock()
		conn = next
	}
}
