// Package bus is the master side of the IOX16 bus: request/response
// transactions with one board at a time, broadcasts and discovery.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"iox16/host/serial"
	"iox16/protocol"
)

var (
	ErrTimeout      = errors.New("no response from board")
	ErrBadAddress   = errors.New("address out of range")
	ErrClosedMaster = errors.New("master is closed")
)

// RemoteError is an error response sent by a board.
type RemoteError struct {
	Address uint8
	Command uint8
	Code    uint8
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("board %d rejected %s: %s", e.Address,
		protocol.CommandName(e.Command), protocol.ErrorCodeName(e.Code))
}

// Is matches any RemoteError with the same code.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	return ok && t.Code == e.Code
}

// Config tunes the transactions of a Master.
type Config struct {
	// Timeout is how long to wait for a response.
	Timeout time.Duration
	// Attempts is the number of tries per request, at least 1.
	Attempts uint
	// RetryDelay separates two attempts.
	RetryDelay time.Duration
	// MinInterval paces consecutive requests so slow boards can turn the
	// line around. Zero disables pacing.
	MinInterval time.Duration
	// Baud is the line rate. On ports that drive the transceiver, the
	// transmitter stays enabled for the wire time of each request. Zero
	// releases it when Write returns.
	Baud int
}

// DefaultConfig returns the settings used by the host tool.
func DefaultConfig() Config {
	return Config{
		Timeout:     50 * time.Millisecond,
		Attempts:    3,
		RetryDelay:  5 * time.Millisecond,
		MinInterval: 2 * time.Millisecond,
	}
}

// Stats counts master side events.
type Stats struct {
	Requests   uint64
	Broadcasts uint64
	Retries    uint64
	Timeouts   uint64
	Remote     uint64 // error responses
	Dropped    uint64 // frames received that failed the checksum
}

// Master owns the port and serializes transactions.
type Master struct {
	port    serial.Port
	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	dec    *protocol.Decoder
	buf    []byte
	start  time.Time
	stats  Stats
	closed bool

	// OnTransaction is called after every request with its outcome.
	OnTransaction func(cmd uint8, d time.Duration, err error)
}

// NewMaster creates a master on an open port. A nil logger disables logging.
func NewMaster(port serial.Port, cfg Config, log *zap.Logger) *Master {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Master{
		port:  port,
		cfg:   cfg,
		log:   log,
		dec:   protocol.NewDecoder(0),
		buf:   make([]byte, 256),
		start: time.Now(),
	}
	if cfg.MinInterval > 0 {
		m.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return m
}

// Open opens the serial port described by cfg and creates a master on it.
func Open(portCfg *serial.Config, cfg Config, log *zap.Logger) (*Master, error) {
	port, err := serial.Open(portCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Baud == 0 {
		cfg.Baud = portCfg.Baud
	}
	return NewMaster(port, cfg, log), nil
}

// Close closes the port.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.port.Close()
}

// Stats returns a snapshot of the counters.
func (m *Master) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Config returns the transaction settings.
func (m *Master) Config() Config {
	return m.cfg
}

// Transact sends a request and waits for the matching response payload.
// Timeouts and corrupted responses are retried; error responses are not.
func (m *Master) Transact(ctx context.Context, addr, cmd uint8, payload []byte) ([]byte, error) {
	if addr == protocol.BroadcastAddress {
		return nil, fmt.Errorf("%w: use Broadcast for address %d", ErrBadAddress, addr)
	}

	var resp []byte
	began := time.Now()
	err := retry.Do(
		func() error {
			var err error
			resp, err = m.transactOnce(ctx, addr, cmd, payload, m.cfg.Timeout)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(m.cfg.Attempts),
		retry.Delay(m.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrTimeout)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.mu.Lock()
			m.stats.Retries++
			m.mu.Unlock()
			m.log.Debug("retrying request",
				zap.Uint8("address", addr),
				zap.String("command", protocol.CommandName(cmd)),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if m.OnTransaction != nil {
		m.OnTransaction(cmd, time.Since(began), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s to %d: %w", protocol.CommandName(cmd), addr, err)
	}
	return resp, nil
}

func (m *Master) transactOnce(ctx context.Context, addr, cmd uint8, payload []byte, timeout time.Duration) ([]byte, error) {
	if err := m.pace(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosedMaster
	}

	if err := m.send(addr, cmd, payload); err != nil {
		return nil, err
	}
	m.stats.Requests++

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := m.port.Read(m.buf)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		for _, b := range m.buf[:n] {
			switch m.dec.Feed(b, m.now()) {
			case protocol.StateComplete:
				f := m.dec.Frame()
				if reply, ok, err := m.match(f, addr, cmd); ok {
					return reply, err
				}
			case protocol.StateError:
				m.stats.Dropped++
				m.log.Debug("dropped frame", zap.Error(m.dec.Err()))
			}
		}
	}
	m.stats.Timeouts++
	m.dec.Reset()
	return nil, ErrTimeout
}

// match checks whether f answers the pending request. Echoes of the request
// and traffic of other boards are skipped.
func (m *Master) match(f protocol.Frame, addr, cmd uint8) ([]byte, bool, error) {
	if f.Address != addr {
		return nil, false, nil
	}
	if f.IsError() {
		if len(f.Payload) < 2 || f.Payload[1] != cmd {
			return nil, false, nil
		}
		m.stats.Remote++
		return nil, true, &RemoteError{Address: addr, Command: cmd, Code: f.Payload[0]}
	}
	if f.Command != cmd|protocol.ResponseFlag {
		return nil, false, nil
	}
	return append([]byte(nil), f.Payload...), true, nil
}

// Broadcast sends a request to every board. No response is expected.
func (m *Master) Broadcast(ctx context.Context, cmd uint8, payload []byte) error {
	if err := m.pace(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosedMaster
	}
	if err := m.send(protocol.BroadcastAddress, cmd, payload); err != nil {
		return err
	}
	m.stats.Broadcasts++
	return nil
}

func (m *Master) send(addr, cmd uint8, payload []byte) error {
	frame, err := protocol.Frame{Address: addr, Command: cmd, Payload: payload}.Encode()
	if err != nil {
		return err
	}
	// stale bytes would be mistaken for the response
	if err := m.port.Flush(); err != nil {
		m.log.Debug("flush failed", zap.Error(err))
	}
	m.dec.Reset()

	dc, drive := m.port.(serial.DirectionControl)
	if drive {
		if err := dc.SetTransmit(true); err != nil {
			return err
		}
		defer dc.SetTransmit(false)
	}
	if _, err := m.port.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if drive {
		time.Sleep(time.Duration(len(frame)) * serial.ByteTime(m.cfg.Baud))
	}
	m.log.Debug("request sent",
		zap.Uint8("address", addr),
		zap.String("command", protocol.CommandName(cmd)),
		zap.Int("bytes", len(frame)))
	return nil
}

func (m *Master) pace(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

func (m *Master) now() protocol.Ticks {
	return protocol.Ticks(uint64(time.Since(m.start) / time.Microsecond))
}
