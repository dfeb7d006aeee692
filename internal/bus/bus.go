// Package bus provides point-to-point and broadcast messaging between agents.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitaker/conclave/pkg/models"
)

// ErrWaitTimeout indicates a wait operation expired before a matching
// message arrived.
var ErrWaitTimeout = errors.New("timed out waiting for message")

// DefaultHistoryCapacity is the default bound on retained message history.
const DefaultHistoryCapacity = 100

// Handler processes a delivered message.
type Handler func(models.Message)

// Predicate selects messages for wait operations.
type Predicate func(models.Message) bool

// HistoryFilter narrows GetHistory results. Zero-value fields match everything.
type HistoryFilter struct {
	// From matches the sender, if non-empty.
	From string
	// To matches the recipient, if non-empty.
	To string
	// Kind matches the message kind, if non-empty.
	Kind models.MessageKind
}

// subscription is one registered handler. target is an agent name, or
// broadcastOnly for handlers registered via SubscribeBroadcast.
type subscription struct {
	id            int
	target        string
	broadcastOnly bool
	handler       Handler
}

// waiter is one pending WaitForMessage/WaitForReply call.
type waiter struct {
	pred Predicate
	ch   chan models.Message
}

// MessageBus routes messages between agents and retains a bounded history.
// History is always recorded before any subscriber is notified, so the
// history order reflects delivery order.
type MessageBus struct {
	mu         sync.Mutex
	history    []models.Message
	historyCap int
	subs       []subscription
	waiters    map[int]*waiter
	nextSubID  int
	nextWaitID int
}

// New creates a MessageBus with the default history capacity.
func New() *MessageBus {
	return NewWithCapacity(DefaultHistoryCapacity)
}

// NewWithCapacity creates a MessageBus retaining at most capacity messages.
func NewWithCapacity(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MessageBus{
		historyCap: capacity,
		waiters:    make(map[int]*waiter),
	}
}

// Send records and delivers a point-to-point message from one agent to another.
func (b *MessageBus) Send(from, to, content string, meta models.MessageMeta) models.Message {
	msg := models.Message{
		ID:        newMessageID(),
		From:      from,
		To:        to,
		Kind:      models.KindRequest,
		Content:   content,
		Timestamp: time.Now(),
		Meta:      meta,
	}
	if meta.ReplyTo != "" {
		msg.Kind = models.KindResponse
	}
	b.dispatch(msg)
	return msg
}

// Broadcast records and delivers a message addressed to all agents.
func (b *MessageBus) Broadcast(from, content string, meta models.MessageMeta) models.Message {
	msg := models.Message{
		ID:        newMessageID(),
		From:      from,
		To:        models.BroadcastTarget,
		Kind:      models.KindBroadcast,
		Content:   content,
		Timestamp: time.Now(),
		Meta:      meta,
	}
	b.dispatch(msg)
	return msg
}

// Event records and delivers a lifecycle notification from the system.
func (b *MessageBus) Event(to, content string, meta models.MessageMeta) models.Message {
	msg := models.Message{
		ID:        newMessageID(),
		From:      models.SystemSender,
		To:        to,
		Kind:      models.KindEvent,
		Content:   content,
		Timestamp: time.Now(),
		Meta:      meta,
	}
	b.dispatch(msg)
	return msg
}

// Reply sends a response correlated to the original message. The reply is
// addressed to the original sender and carries Meta.ReplyTo = original.ID.
func (b *MessageBus) Reply(original models.Message, from, content string) models.Message {
	msg := models.Message{
		ID:        newMessageID(),
		From:      from,
		To:        original.From,
		Kind:      models.KindResponse,
		Content:   content,
		Timestamp: time.Now(),
		Meta:      models.MessageMeta{ReplyTo: original.ID},
	}
	b.dispatch(msg)
	return msg
}

// Subscribe registers a handler for messages addressed to the given agent,
// including broadcasts. It returns an unsubscribe function.
func (b *MessageBus) Subscribe(agent string, handler Handler) func() {
	return b.addSubscription(agent, false, handler)
}

// SubscribeBroadcast registers a handler invoked only for broadcast messages.
// It returns an unsubscribe function.
func (b *MessageBus) SubscribeBroadcast(handler Handler) func() {
	return b.addSubscription("", true, handler)
}

func (b *MessageBus) addSubscription(target string, broadcastOnly bool, handler Handler) func() {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, subscription{
		id:            id,
		target:        target,
		broadcastOnly: broadcastOnly,
		handler:       handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// WaitForMessage blocks until a message matching the predicate is recorded,
// the timeout elapses, or the context is cancelled.
func (b *MessageBus) WaitForMessage(ctx context.Context, pred Predicate, timeout time.Duration) (models.Message, error) {
	w := &waiter{pred: pred, ch: make(chan models.Message, 1)}

	b.mu.Lock()
	b.nextWaitID++
	id := b.nextWaitID
	b.waiters[id] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-timer.C:
		return models.Message{}, fmt.Errorf("%w after %v", ErrWaitTimeout, timeout)
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// WaitForReply blocks until a message whose Meta.ReplyTo equals messageID is
// recorded, the timeout elapses, or the context is cancelled.
func (b *MessageBus) WaitForReply(ctx context.Context, messageID string, timeout time.Duration) (models.Message, error) {
	return b.WaitForMessage(ctx, func(m models.Message) bool {
		return m.Meta.ReplyTo == messageID
	}, timeout)
}

// GetHistory returns retained messages matching the filter, oldest first.
func (b *MessageBus) GetHistory(filter HistoryFilter) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Message, 0, len(b.history))
	for _, m := range b.history {
		if filter.From != "" && m.From != filter.From {
			continue
		}
		if filter.To != "" && m.To != filter.To {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		out = append(out, m)
	}
	return out
}

// History returns all retained messages, oldest first.
func (b *MessageBus) History() []models.Message {
	return b.GetHistory(HistoryFilter{})
}

// LoadHistory replaces the retained history, trimming to capacity.
// Used by the persistence layer when restoring a session.
func (b *MessageBus) LoadHistory(msgs []models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append([]models.Message(nil), msgs...)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
}

// Len returns the number of retained messages.
func (b *MessageBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// dispatch records the message into history and then notifies matching
// subscribers and waiters. Handlers run synchronously in subscription
// order; a panicking handler is logged and does not interrupt the rest.
func (b *MessageBus) dispatch(msg models.Message) {
	b.mu.Lock()

	// Record first so history always reflects delivery order.
	b.history = append(b.history, msg)
	if len(b.history) > b.historyCap {
		b.history = b.history[1:]
	}

	broadcast := msg.To == models.BroadcastTarget

	var handlers []Handler
	for _, s := range b.subs {
		switch {
		case broadcast:
			handlers = append(handlers, s.handler)
		case s.broadcastOnly:
			// Broadcast-only handlers never see point-to-point traffic.
		case s.target == msg.To:
			handlers = append(handlers, s.handler)
		}
	}

	var matched []*waiter
	for _, w := range b.waiters {
		if w.pred(msg) {
			matched = append(matched, w)
		}
	}
	b.mu.Unlock()

	// Notify outside the lock so handlers can call back into the bus.
	for _, h := range handlers {
		b.invoke(h, msg)
	}
	for _, w := range matched {
		select {
		case w.ch <- msg:
		default:
		}
	}
}

func (b *MessageBus) invoke(h Handler, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] handler panic for message %s: %v", msg.ID, r)
		}
	}()
	h(msg)
}

// newMessageID returns a short unique message identifier.
func newMessageID() string {
	return uuid.New().String()[:8]
}
