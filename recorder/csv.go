package recorder

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CSVSink appends one row per record. The header is written when the file
// is created empty. Each row goes out in a single write followed by fsync,
// so a crash can at worst leave a torn last line.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
}

func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	sink := &CSVSink{file: f}
	if info.Size() == 0 {
		if err := sink.writeRow(Columns); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	return sink, nil
}

func (c *CSVSink) Write(r *TurnRecord) error {
	values := r.Values()
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = formatCell(v)
	}
	return c.writeRow(row)
}

func (c *CSVSink) writeRow(row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.file.Write(buf.Bytes()); err != nil {
		return err
	}
	return c.file.Sync()
}

func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
