package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the per-observer buffer used when none is configured.
const DefaultQueueSize = 64

// Dispatcher delivers events to observers without blocking the publisher.
//
// Each observer owns a FIFO queue drained by its own goroutine, so events for
// one record reach a given observer in publish order. An observer whose queue
// is full misses the event.
type Dispatcher struct {
	logger    *slog.Logger
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscription struct {
	observer Observer
	queue    chan Event
	once     sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.queue) })
}

// New creates a Dispatcher. queueSize <= 0 selects DefaultQueueSize.
func New(logger *slog.Logger, queueSize int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:    logger,
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[uint64]*subscription),
	}
}

// Subscribe registers o and returns a function that removes it again.
// Subscribing to a closed dispatcher is a no-op.
func (d *Dispatcher) Subscribe(o Observer) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}

	id := d.nextID
	d.nextID++
	sub := &subscription{observer: o, queue: make(chan Event, d.queueSize)}
	d.subs[id] = sub

	d.wg.Add(1)
	go d.deliver(sub)

	d.logger.Debug("observer subscribed", slog.String("observer", o.Name()))

	return func() {
		d.mu.Lock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			sub.stop()
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) deliver(sub *subscription) {
	defer d.wg.Done()

	for ev := range sub.queue {
		if err := d.notify(sub.observer, ev); err != nil {
			d.dropped.Add(1)
			d.logger.Debug("event delivery failed",
				slog.String("observer", sub.observer.Name()),
				slog.String("action", string(ev.Action)),
				slog.String("test_id", ev.Record.ID),
				slog.String("error", err.Error()))
		}
	}
}

// notify shields the delivery goroutine from a panicking observer.
func (d *Dispatcher) notify(o Observer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked",
				slog.String("observer", o.Name()),
				slog.Any("panic", r))
			err = errObserverPanic
		}
	}()
	return o.Notify(d.ctx, ev)
}

// Publish enqueues ev for every observer and returns immediately.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	d.published.Add(1)

	for _, sub := range d.subs {
		select {
		case sub.queue <- ev:
		default:
			d.dropped.Add(1)
			d.logger.Warn("observer queue full, event dropped",
				slog.String("observer", sub.observer.Name()),
				slog.String("action", string(ev.Action)),
				slog.String("test_id", ev.Record.ID))
		}
	}
}

// Observers returns the number of registered observers.
func (d *Dispatcher) Observers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Published returns how many events were accepted by Publish.
func (d *Dispatcher) Published() uint64 {
	return d.published.Load()
}

// Dropped returns how many deliveries were lost, either to a full queue or an observer error.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events, lets every observer drain its queue and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		sub.stop()
		delete(d.subs, id)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}
