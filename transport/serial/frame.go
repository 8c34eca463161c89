package serial

import (
	"fmt"
	"time"
)

// Wire packet types. Commands flow to the radio coprocessor, events
// flow back.
const (
	commandPacket = 0x01
	eventPacket   = 0x04
)

const (
	headerOffsetType   = 0
	headerOffsetOpcode = 1
	headerOffsetLength = 2
	headerLength       = 3
)

// frame reassembles event packets from the byte chunks the serial
// port produces. A stalled partial frame expires so one corrupted
// length byte cannot wedge the stream.
type frame struct {
	b       []byte
	timeout time.Time
	out     chan []byte
}

func newFrame(c chan []byte) *frame {
	return &frame{
		b:   make([]byte, 0, 256),
		out: c,
	}
}

func (f *frame) Assemble(b []byte) {
	switch {
	case len(b) == 0:
		return

	case !f.timeout.IsZero() && time.Now().After(f.timeout):
		fallthrough
	case f.b == nil:
		f.reset()

	default:
		// ok
	}

	if len(f.b) == 0 {
		if err := f.waitStart(b); err != nil {
			return
		}
	} else {
		bb := make([]byte, len(b))
		copy(bb, b)
		f.b = append(f.b, bb...)
	}

	rf, err := f.frame()
	if err != nil {
		return
	}
	out := make([]byte, len(rf))
	copy(out, rf)
	f.out <- out

	// shift leftover bytes into the next frame
	if len(f.b) > len(rf) {
		rem := make([]byte, len(f.b[len(rf):]))
		copy(rem, f.b[len(rf):])
		f.reset()
		f.Assemble(rem)
	} else {
		f.reset()
	}
}

func (f *frame) reset() {
	f.b = make([]byte, 0, 256)
	f.timeout = time.Time{}
}

func (f *frame) waitStart(b []byte) error {
	// hunt for the start byte, discarding line noise before it
	var i int
	var ok bool
	for i = range b {
		if b[i] == eventPacket {
			ok = true
			f.timeout = time.Now().Add(time.Millisecond * 500)
			break
		}
	}

	if !ok {
		return fmt.Errorf("couldnt find start byte")
	}

	bb := make([]byte, len(b[i:]))
	copy(bb, b[i:])
	f.b = append(f.b, bb...)
	return nil
}

func (f *frame) frame() ([]byte, error) {
	if len(f.b) < headerLength {
		return nil, fmt.Errorf("not enough bytes")
	}

	tl := int(f.b[headerOffsetLength]) + headerLength
	if len(f.b) < tl {
		return nil, fmt.Errorf("not enough bytes")
	}
	return f.b[:tl], nil
}
