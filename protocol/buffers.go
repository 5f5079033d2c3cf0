package protocol

// InputBuffer is a window of received bytes the decoder consumes from.
type InputBuffer interface {
	// Data returns the unconsumed bytes
	Data() []byte

	// Available returns len(Data())
	Available() int

	// Pop consumes n bytes from the front
	Pop(n int)
}

// OutputBuffer accumulates an outgoing frame.
type OutputBuffer interface {
	Output(data []byte)

	// CurPosition returns the number of bytes written so far
	CurPosition() int

	// DataSince returns the bytes written from pos onwards
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a byte slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchSize holds one maximum-size frame plus its preamble.
const ScratchSize = FrameMax + 4

// ScratchOutput is a fixed OutputBuffer for one response. Bytes beyond
// ScratchSize are dropped and reported by Overflowed.
type ScratchOutput struct {
	buf      [ScratchSize]byte
	pos      int
	overflow bool
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Overflowed reports whether any write was truncated since the last Reset.
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer is a byte ring between a receiver and the decoder. Writes
// beyond capacity are dropped and counted. Not safe for concurrent use;
// callers hold their own lock.
type FifoBuffer struct {
	buf     []byte
	head    int // next byte to read
	n       int // bytes buffered
	dropped uint32
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends data and returns how many bytes fit.
func (f *FifoBuffer) Write(data []byte) int {
	room := len(f.buf) - f.n
	if len(data) > room {
		f.dropped += uint32(len(data) - room)
		data = data[:room]
	}
	for _, b := range data {
		f.buf[(f.head+f.n)%len(f.buf)] = b
		f.n++
	}
	return len(data)
}

// Read moves up to len(data) bytes out of the ring.
func (f *FifoBuffer) Read(data []byte) int {
	count := 0
	for count < len(data) {
		b, ok := f.TryReadByte()
		if !ok {
			break
		}
		data[count] = b
		count++
	}
	return count
}

// TryReadByte pops one byte; ok is false when the ring is empty.
func (f *FifoBuffer) TryReadByte() (b byte, ok bool) {
	if f.n == 0 {
		return 0, false
	}
	b = f.buf[f.head]
	f.head = (f.head + 1) % len(f.buf)
	f.n--
	return b, true
}

func (f *FifoBuffer) Available() int {
	return f.n
}

// Dropped returns the number of bytes refused by Write.
func (f *FifoBuffer) Dropped() uint32 {
	return f.dropped
}

// Reset empties the ring. The drop counter is kept.
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.n = 0
}
