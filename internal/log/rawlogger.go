package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger handles raw frame logging with optional file output.
type RawLogger interface {
	Log(in bool, data []byte)
}

// rawLogger implements RawLogger with thread-safe logging.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If writer is nil, returns a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits a single-line raw frame log with timestamp and hex dump.
// in=true means client->server, in=false means server->client.
func (r *rawLogger) Log(in bool, data []byte) {
	if len(data) == 0 {
		return
	}
	if r.w == nil {
		return
	}

	dir := "S->C"
	if in {
		dir = "C->S"
	}

	line := fmt.Sprintf("%s %s frame: %d bytes, hex: % x\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		len(data),
		data)

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}
