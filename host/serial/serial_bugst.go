//go:build !wasm

package serial

import (
	"fmt"

	bugst "go.bug.st/serial"
)

// BugPort wraps go.bug.st/serial. It can toggle RTS around transmissions
// for adapters that wire RTS to the transceiver enable.
type BugPort struct {
	port bugst.Port
	cfg  *Config
}

// OpenBugst opens a port through go.bug.st/serial
func OpenBugst(cfg *Config) (*BugPort, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.Baud,
		Parity:   bugst.NoParity,
		DataBits: 8,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.readTimeout()); err != nil {
			p.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	bp := &BugPort{port: p, cfg: cfg}
	if cfg.RTSTransmit {
		if err := bp.SetTransmit(false); err != nil {
			p.Close()
			return nil, err
		}
	}
	p.ResetInputBuffer()
	return bp, nil
}

func (p *BugPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *BugPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *BugPort) Close() error {
	p.port.ResetOutputBuffer()
	return p.port.Close()
}

// Flush discards unread input
func (p *BugPort) Flush() error {
	return p.port.ResetInputBuffer()
}

// SetTransmit drives RTS. It is a no-op unless RTSTransmit is configured.
func (p *BugPort) SetTransmit(on bool) error {
	if !p.cfg.RTSTransmit {
		return nil
	}
	if err := p.port.SetRTS(on); err != nil {
		return fmt.Errorf("set rts: %w", err)
	}
	return nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
