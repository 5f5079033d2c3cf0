package serial

import (
	"errors"
	"io"
	"sync"
	"time"

	"iox16/core"
	"iox16/protocol"
)

// Line lets the firmware core run against a PC serial port, for the
// simulate command. A reader goroutine moves received bytes into a FIFO so
// TryReadByte never blocks.
type Line struct {
	port     Port
	byteTime time.Duration

	mu     sync.Mutex
	rx     *protocol.FifoBuffer
	err    error
	txDone time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLine starts reading from port. baud sets the wire time used by
// TransmitComplete.
func NewLine(port Port, baud int) *Line {
	l := &Line{
		port:     port,
		byteTime: ByteTime(baud),
		rx:       protocol.NewFifoBuffer(4096),
		done:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop()
	return l
}

func (l *Line) readLoop() {
	defer l.wg.Done()
	buf := make([]byte, 256)
	for {
		select {
		case <-l.done:
			return
		default:
		}
		n, err := l.port.Read(buf)
		if n > 0 {
			l.mu.Lock()
			l.rx.Write(buf[:n])
			l.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
			}
			return
		}
	}
}

// TryReadByte implements core.Line.
func (l *Line) TryReadByte() (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rx.TryReadByte()
}

// WriteBytes implements core.Line.
func (l *Line) WriteBytes(p []byte) error {
	if _, err := l.port.Write(p); err != nil {
		return err
	}
	l.mu.Lock()
	l.txDone = time.Now().Add(time.Duration(len(p)) * l.byteTime)
	l.mu.Unlock()
	return nil
}

// SetDirection implements core.Line. Ports without direction control rely
// on an adapter with automatic transceiver switching.
func (l *Line) SetDirection(d core.Direction) {
	if dc, ok := l.port.(DirectionControl); ok {
		if err := dc.SetTransmit(d == core.Transmit); err != nil {
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
		}
	}
}

// TransmitComplete implements core.Line. The port offers no drain status,
// so completion is estimated from the baud rate.
func (l *Line) TransmitComplete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !time.Now().Before(l.txDone)
}

// Err returns the error that stopped the reader, if any.
func (l *Line) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close stops the reader and closes the port.
func (l *Line) Close() error {
	close(l.done)
	err := l.port.Close()
	l.wg.Wait()
	return err
}

var _ core.Line = (*Line)(nil)
