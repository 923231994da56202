package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Writer emits one message per line. Writes from concurrent goroutines never
// interleave and each line is flushed before Write returns.
type Writer struct {
	mu  sync.Mutex
	out *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

func (w *Writer) Write(m Message) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode %s: %w", m.messageType(), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", m.messageType(), err)
	}
	return w.out.Flush()
}
