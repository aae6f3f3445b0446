package odrive

import (
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/FabianPetersen/can"
	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
)

// ErrTransportClosed is returned when publishing on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// A Handler is called for every frame received on a transport.
type Handler func(frame Frame)

// Transport is the bus contract the protocol runtime needs: publish a frame and
// subscribe to every received frame. Nothing beyond what the medium provides is
// assumed about ordering, delivery or duplicates.
type Transport interface {
	Publish(frame Frame) error
	// Subscribe registers a handler and returns the function removing it.
	// Handlers must not block; they run on the receive path.
	Subscribe(handler Handler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler Handler
}

// hub fans a frame out to every subscribed handler.
type hub struct {
	mu            sync.Mutex
	nextID        uint64
	subscriptions []subscription
}

func (h *hub) subscribe(handler Handler) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscriptions = append(h.subscriptions, subscription{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subscriptions {
				if s.id == id {
					h.subscriptions = append(h.subscriptions[:i:i], h.subscriptions[i+1:]...)
					return
				}
			}
		})
	}
}

// mark returns the id of the latest subscription.
func (h *hub) mark() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextID
}

// dispatch calls the handlers subscribed at the time of the call, outside the
// lock so that handlers may subscribe or unsubscribe.
func (h *hub) dispatch(frame Frame) {
	h.dispatchUpTo(frame, math.MaxUint64)
}

// dispatchUpTo is dispatch restricted to the subscriptions made up to mark.
func (h *hub) dispatchUpTo(frame Frame, mark uint64) {
	h.mu.Lock()
	handlers := make([]Handler, 0, len(h.subscriptions))
	for _, s := range h.subscriptions {
		if s.id <= mark {
			handlers = append(handlers, s.handler)
		}
	}
	h.mu.Unlock()

	for _, handler := range handlers {
		handler(frame)
	}
}

// Bus adapts a can.Bus to the Transport interface.
// A single handler is registered on the underlying bus; subscriptions are managed
// here so that they can be added and removed while frames are being received.
type Bus struct {
	bus *can.Bus
	hub hub

	// Attempts and RetryDelay bound the retries of a single frame write
	// (e.g. a full transmit queue). Requests are never retried.
	Attempts   uint
	RetryDelay time.Duration
	Logger     logrus.FieldLogger
}

// NewBus wraps an existing can.Bus.
func NewBus(bus *can.Bus) *Bus {
	b := &Bus{
		bus:        bus,
		Attempts:   5,
		RetryDelay: time.Millisecond,
		Logger:     discardLogger(),
	}

	bus.SubscribeFunc(func(frm can.Frame) {
		b.hub.dispatch(ODriveFrame(frm))
	})
	return b
}

// NewBusForInterfaceWithName opens a SocketCAN interface, e.g. "can0".
func NewBusForInterfaceWithName(name string) (*Bus, error) {
	canbus, err := can.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return NewBus(canbus), nil
}

// NewBusWithReadWriteCloser runs a bus on top of a stream carrying one frame per
// read and write in the layout of can.Marshal, such as a serial CAN adapter.
func NewBusWithReadWriteCloser(rwc io.ReadWriteCloser, name string) *Bus {
	return NewBus(can.NewBus(can.NewReadWriteCloser(rwc), name))
}

// ConnectAndPublish reads frames and dispatches them to subscribers until the
// bus is disconnected. It blocks.
func (b *Bus) ConnectAndPublish() error {
	return b.bus.ConnectAndPublish()
}

// Disconnect closes the underlying bus.
func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

func (b *Bus) Subscribe(handler Handler) func() {
	return b.hub.subscribe(handler)
}

func (b *Bus) Publish(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	frm := frame.CANFrame()
	return retry.Do(func() error {
		return b.bus.Publish(frm)
	},
		retry.Attempts(b.Attempts),
		retry.Delay(b.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			b.Logger.WithFields(logrus.Fields{"frame": frame.String(), "attempt": n + 1}).WithError(err).Debug("frame write failed")
		}),
	)
}

// Loopback is an in-memory Transport. Every published frame is delivered to every
// subscriber, the publisher included, in publish order from a single receive
// goroutine, like frames read from a real bus. A frame is only delivered to the
// handlers subscribed before it was published.
type Loopback struct {
	hub hub

	mu      sync.Mutex
	pending []queuedFrame
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

type queuedFrame struct {
	frame Frame
	mark  uint64
}

func NewLoopback() *Loopback {
	l := &Loopback{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loopback) Subscribe(handler Handler) func() {
	return l.hub.subscribe(handler)
}

// Publish queues a frame for delivery. It never blocks, so handlers may publish.
func (l *Loopback) Publish(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	data := make([]uint8, len(frame.Data))
	copy(data, frame.Data)
	frame.Data = data

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	l.pending = append(l.pending, queuedFrame{frame: frame, mark: l.hub.mark()})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops delivery. Frames still queued are dropped.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}

func (l *Loopback) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.pending) == 0 {
				l.mu.Unlock()
				break
			}
			queued := l.pending[0]
			l.pending = l.pending[1:]
			l.mu.Unlock()

			l.hub.dispatchUpTo(queued.frame, queued.mark)
		}
	}
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
