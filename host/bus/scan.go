package bus

import (
	"context"
	"errors"
	"time"

	"iox16/protocol"
)

// Board describes a board found by Scan.
type Board struct {
	Address uint8
	Status  protocol.Status
	Info    protocol.Info
}

// ScanOptions limits a bus scan.
type ScanOptions struct {
	First, Last uint8         // inclusive address range, Last < BroadcastAddress
	Timeout     time.Duration // per address, defaults to the master timeout
	// Progress is called after every probed address.
	Progress func(addr uint8, found bool)
}

// DefaultScanOptions probes every assignable address.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{First: 0, Last: protocol.BroadcastAddress - 1}
}

// Scan pings every address in range once and describes the boards that
// answer. Addresses that time out are skipped; other errors abort the scan.
func (m *Master) Scan(ctx context.Context, opts ScanOptions) ([]Board, error) {
	if opts.Last >= protocol.BroadcastAddress {
		opts.Last = protocol.BroadcastAddress - 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = m.cfg.Timeout
	}

	var found []Board
	for addr := int(opts.First); addr <= int(opts.Last); addr++ {
		a := uint8(addr)
		_, err := m.transactOnce(ctx, a, protocol.CmdPing, nil, opts.Timeout)
		switch {
		case err == nil:
			b, err := m.describe(ctx, a)
			if err != nil {
				return found, err
			}
			found = append(found, b)
		case errors.Is(err, ErrTimeout):
		default:
			return found, err
		}
		if opts.Progress != nil {
			opts.Progress(a, err == nil)
		}
	}
	return found, nil
}

func (m *Master) describe(ctx context.Context, addr uint8) (Board, error) {
	b := Board{Address: addr}
	var err error
	if b.Status, err = m.Status(ctx, addr); err != nil {
		return b, err
	}
	if b.Info, err = m.Info(ctx, addr); err != nil {
		return b, err
	}
	return b, nil
}
