package sse

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one dispatched text/event-stream message.
type Frame struct {
	ID    string
	Event string
	Data  string
	Retry string
}

// Decoder reads frames off a text/event-stream body. Lines of any length are
// accepted; comment lines (":" prefix) are skipped.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a complete frame has been read. A frame without data is
// not dispatched. The returned error is io.EOF on a clean end of stream.
func (d *Decoder) Next() (Frame, error) {
	var (
		f    Frame
		data []string
		seen bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// a trailing partial frame without the blank separator is discarded
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if seen && len(data) > 0 {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			f, data, seen = Frame{}, nil, false
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		seen = true

		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
		case "id":
			f.ID = value
		case "retry":
			f.Retry = value
		}
	}
}
