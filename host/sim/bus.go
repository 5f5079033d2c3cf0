package sim

import (
	"io"
	"sync"
	"time"

	"iox16/protocol"
)

// DefaultReadTimeout matches the read timeout of the native serial ports.
const DefaultReadTimeout = 20 * time.Millisecond

// Bus connects simulated boards to a master. It implements the master's
// port: Write broadcasts to every attached board, Read returns what the
// boards transmitted. A Read with nothing buffered waits up to the read
// timeout and then returns 0, nil like a serial port does.
type Bus struct {
	mu          sync.Mutex
	boards      []*Board
	rx          *protocol.FifoBuffer
	notify      chan struct{}
	closed      bool
	readTimeout time.Duration
}

// NewBus creates a bus with the given boards attached.
func NewBus(boards ...*Board) *Bus {
	bus := &Bus{
		rx:          protocol.NewFifoBuffer(4096),
		notify:      make(chan struct{}, 1),
		readTimeout: DefaultReadTimeout,
	}
	for _, b := range boards {
		bus.Attach(b)
	}
	return bus
}

// Attach connects a board. Its transmissions are routed to the master.
func (bus *Bus) Attach(b *Board) {
	bus.mu.Lock()
	bus.boards = append(bus.boards, b)
	bus.mu.Unlock()

	b.mu.Lock()
	b.sink = bus.deliver
	b.mu.Unlock()
}

// SetReadTimeout changes how long Read waits for data.
func (bus *Bus) SetReadTimeout(d time.Duration) {
	bus.mu.Lock()
	bus.readTimeout = d
	bus.mu.Unlock()
}

func (bus *Bus) deliver(p []byte) {
	bus.mu.Lock()
	bus.rx.Write(p)
	bus.mu.Unlock()

	select {
	case bus.notify <- struct{}{}:
	default:
	}
}

// Write sends bytes from the master to every board.
func (bus *Bus) Write(p []byte) (int, error) {
	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	boards := append([]*Board(nil), bus.boards...)
	bus.mu.Unlock()

	for _, b := range boards {
		b.Inject(p)
	}
	return len(p), nil
}

// Read returns bytes transmitted by the boards.
func (bus *Bus) Read(p []byte) (int, error) {
	deadline := time.Now().Add(bus.timeout())
	for {
		bus.mu.Lock()
		if bus.closed {
			bus.mu.Unlock()
			return 0, io.EOF
		}
		if bus.rx.Available() > 0 {
			n := bus.rx.Read(p)
			bus.mu.Unlock()
			return n, nil
		}
		bus.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, nil
		}
		select {
		case <-bus.notify:
		case <-time.After(wait):
		}
	}
}

func (bus *Bus) timeout() time.Duration {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.readTimeout
}

// Flush discards bytes the master has not read yet.
func (bus *Bus) Flush() error {
	bus.mu.Lock()
	bus.rx.Reset()
	bus.mu.Unlock()
	return nil
}

// Close makes further reads return io.EOF.
func (bus *Bus) Close() error {
	bus.mu.Lock()
	bus.closed = true
	bus.mu.Unlock()

	select {
	case bus.notify <- struct{}{}:
	default:
	}
	return nil
}
