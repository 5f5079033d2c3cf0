package core

import "sync"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// BusEvent captures a protocol or hardware event for post-mortem analysis
type BusEvent struct {
	EventType uint8  // Event type code
	Command   uint8  // Command byte of the frame involved, if any
	Clock     uint32 // Board ticks at event
	Value     uint32 // Context-dependent value
}

// Event type codes
const (
	EvtFrame       = 1 // frame accepted for this board
	EvtResponse    = 2 // response transmitted
	EvtCRCError    = 3 // frame dropped, checksum mismatch
	EvtOversize    = 4 // frame dropped, length above 64
	EvtTimeout     = 5 // partial frame expired
	EvtCmdError    = 6 // error response, Value is the error code
	EvtSampleFail  = 7 // input sampling failed, Value is the stale mask
	EvtOutputFault = 8 // output driver refused an update
	EvtLineError   = 9 // line write failed
	EvtReboot      = 10
	EvtPanic       = 11 // control loop recovered from a panic
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event capture ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]BusEvent
	eventRingHead uint8
	eventMu       sync.Mutex // simulated boards share the ring
	eventsEnabled bool = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, a logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter. Once started, DebugPrintln
// never blocks the control loop; lines are dropped when the queue is full.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if !debugEnabled || debugPrintln == nil {
		return
	}
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
		return
	}
	debugPrintln(msg)
}

// RecordEvent captures an event in the ring buffer
func RecordEvent(eventType, command uint8, clock, value uint32) {
	if !eventsEnabled {
		return
	}
	eventMu.Lock()
	idx := eventRingHead
	eventRing[idx] = BusEvent{
		EventType: eventType,
		Command:   command,
		Clock:     clock,
		Value:     value,
	}
	eventRingHead = (idx + 1) % EventRingSize
	eventMu.Unlock()
}

// Events returns the recorded events, oldest first
func Events() []BusEvent {
	eventMu.Lock()
	defer eventMu.Unlock()
	events := make([]BusEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a printable name for an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtFrame:
		return "FRAME"
	case EvtResponse:
		return "RESPONSE"
	case EvtCRCError:
		return "CRC_ERROR!"
	case EvtOversize:
		return "OVERSIZE!"
	case EvtTimeout:
		return "TIMEOUT"
	case EvtCmdError:
		return "CMD_ERROR"
	case EvtSampleFail:
		return "SAMPLE_FAIL!"
	case EvtOutputFault:
		return "OUTPUT_FAULT!"
	case EvtLineError:
		return "LINE_ERROR!"
	case EvtReboot:
		return "REBOOT"
	case EvtPanic:
		return "PANIC!"
	}
	return "UNKNOWN"
}

// DumpEvents outputs the event ring (call on shutdown/error)
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENTS] " + EventName(evt.EventType) +
			" cmd=" + hex8(evt.Command) +
			" clock=" + utoa(evt.Clock) +
			" v=" + utoa(evt.Value))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEvents clears the event buffer
func ClearEvents() {
	eventMu.Lock()
	defer eventMu.Unlock()
	for i := range eventRing {
		eventRing[i] = BusEvent{}
	}
	eventRingHead = 0
}
