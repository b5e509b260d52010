package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	audit "auditpipe/pkg/platform/audit"
)

// JSONArrayWriter streams events as the elements of a single JSON array.
type JSONArrayWriter struct {
	w       *bufio.Writer
	started bool
	count   int
}

func NewJSONArrayWriter(w io.Writer) *JSONArrayWriter {
	return &JSONArrayWriter{w: bufio.NewWriter(w)}
}

func (j *JSONArrayWriter) WriteBatch(batch []audit.EventProjection) error {
	j.open()
	for _, p := range batch {
		if j.count > 0 {
			if err := j.w.WriteByte(','); err != nil {
				return err
			}
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal export event: %w", err)
		}
		if _, err := j.w.Write(b); err != nil {
			return err
		}
		j.count++
	}
	return j.w.Flush()
}

// Close writes the closing bracket.
func (j *JSONArrayWriter) Close() error {
	j.open()
	if err := j.w.WriteByte(']'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *JSONArrayWriter) open() {
	if !j.started {
		j.started = true
		_ = j.w.WriteByte('[')
	}
}
