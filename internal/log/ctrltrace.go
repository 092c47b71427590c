package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// TraceLogger records raw bytes crossing the control endpoint: SETUP packets
// as they arrive from the host, and whatever a class driver replies with.
// It exists purely for diagnosing enumeration failures; production wiring
// runs with it disabled.
type TraceLogger interface {
	Trace(toDevice bool, stage string, data []byte)
}

type traceLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewTrace creates a new TraceLogger. If writer is nil, returns a no-op logger.
func NewTrace(w io.Writer) TraceLogger {
	return &traceLogger{w: w}
}

// Trace emits a single-line hex dump with a direction and a stage label
// (SETUP/DATA/ACK, per usbclass.Stage).
func (t *traceLogger) Trace(toDevice bool, stage string, data []byte) {
	if len(data) == 0 {
		return
	}
	if t.w == nil {
		return
	}

	dir := "DEV->HOST"
	if toDevice {
		dir = "HOST->DEV"
	}

	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}

	line := fmt.Sprintf("%s %s %-5s %d bytes: %s\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		stage,
		len(data),
		hexbuf.String())

	t.mu.Lock()
	_, _ = t.w.Write([]byte(line))
	t.mu.Unlock()
}
