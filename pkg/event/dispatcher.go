// Package event provides a typed publish/subscribe bus with a single ordered
// delivery goroutine.
package event

import (
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// ErrClosed is returned by Post after Close
var ErrClosed = errors.New("dispatcher closed")

type handlerFunc func(any)

type subscriber struct {
	id      uuid.UUID
	handler handlerFunc
}

// Dispatcher routes posted events to the handlers subscribed to their type.
//
// Events are delivered one at a time, in post order, on a single goroutine.
// Handlers therefore never run concurrently with each other, and a handler may
// post further events without blocking. The handler list is copied on write, so
// subscribing or cancelling during delivery never affects an event already
// being delivered.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]subscriber

	queueMu sync.Mutex
	queue   []any
	busy    bool
	closed  bool
	wake    chan struct{}
	idle    *sync.Cond

	logger *log.Logger
	done   chan struct{}
}

// Subscription is a handle to a registered handler
type Subscription struct {
	d   *Dispatcher
	typ reflect.Type
	id  uuid.UUID
}

// ID returns the unique identifier of the subscription
func (s Subscription) ID() uuid.UUID {
	return s.id
}

// Cancel removes the handler. An event whose delivery has already started
// may still reach it; later events do not.
func (s Subscription) Cancel() {
	if s.d == nil {
		return
	}
	s.d.unsubscribe(s.typ, s.id)
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine
func NewDispatcher(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	d := &Dispatcher{
		handlers: make(map[reflect.Type][]subscriber),
		wake:     make(chan struct{}, 1),
		logger:   logger,
		done:     make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.queueMu)
	go d.deliverLoop()
	return d
}

// Subscribe registers handler for every posted event of type T
func Subscribe[T any](d *Dispatcher, handler func(T)) Subscription {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	sub := subscriber{
		id: uuid.New(),
		handler: func(ev any) {
			handler(ev.(T))
		},
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Copy on write: in-flight deliveries keep the slice they already read
	current := d.handlers[typ]
	next := make([]subscriber, len(current), len(current)+1)
	copy(next, current)
	d.handlers[typ] = append(next, sub)

	return Subscription{d: d, typ: typ, id: sub.id}
}

func (d *Dispatcher) unsubscribe(typ reflect.Type, id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.handlers[typ]
	next := make([]subscriber, 0, len(current))
	for _, s := range current {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(d.handlers, typ)
		return
	}
	d.handlers[typ] = next
}

// Post queues ev for delivery to the subscribers of its dynamic type.
// It never blocks on handlers.
func (d *Dispatcher) Post(ev any) error {
	if ev == nil {
		return errors.New("nil event")
	}

	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		return ErrClosed
	}
	d.queue = append(d.queue, ev)
	d.queueMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Drain blocks until every event posted so far has been delivered.
// It must not be called from a handler.
func (d *Dispatcher) Drain() {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	for len(d.queue) > 0 || d.busy {
		d.idle.Wait()
	}
}

// Close stops accepting events, delivers what is already queued and waits
// for the delivery goroutine to exit. Calling Close more than once is safe.
func (d *Dispatcher) Close() {
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.queueMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) deliverLoop() {
	defer close(d.done)

	for {
		d.queueMu.Lock()
		for len(d.queue) == 0 {
			d.busy = false
			d.idle.Broadcast()
			if d.closed {
				d.queueMu.Unlock()
				return
			}
			d.queueMu.Unlock()
			<-d.wake
			d.queueMu.Lock()
		}
		ev := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.busy = true
		d.queueMu.Unlock()

		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev any) {
	typ := reflect.TypeOf(ev)

	d.mu.RLock()
	subs := d.handlers[typ]
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.logger.Debug().Str("type", typ.String()).Msg("event has no subscribers")
		return
	}

	for _, s := range subs {
		d.invoke(s, ev, typ)
	}
}

func (d *Dispatcher) invoke(s subscriber, ev any, typ reflect.Type) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("type", typ.String()).
				Str("subscription", s.id.String()).
				Any("panic", r).
				Msg("event handler panicked")
		}
	}()
	s.handler(ev)
}
