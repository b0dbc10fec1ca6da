package sse

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Encoder writes frames in text/event-stream format, flushing after each one
// when the writer supports it.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(f Frame) error {
	var b strings.Builder
	if f.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", f.ID)
	}
	if f.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", f.Event)
	}
	if f.Retry != "" {
		fmt.Fprintf(&b, "retry: %s\n", f.Retry)
	}
	for line := range strings.SplitSeq(f.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	return e.write(b.String())
}

// Comment writes a ":" line, which readers skip.
func (e *Encoder) Comment(text string) error {
	return e.write(": " + text + "\n\n")
}

func (e *Encoder) write(s string) error {
	if _, err := io.WriteString(e.w, s); err != nil {
		return err
	}
	if fl, ok := e.w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}
