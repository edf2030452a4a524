// Package dataset implements the DatasetWriter port with JSONL and JSON files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DatasetWriter = (*Writer)(nil)

// Writer writes files atomically: content goes to a temp file in the target
// directory which is renamed over the destination once fully written.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteExamples writes one JSON object per line.
func (w *Writer) WriteExamples(path string, examples []model.TrainingExample) error {
	return writeAtomic(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		for i, ex := range examples {
			if err := enc.Encode(ex); err != nil {
				return fmt.Errorf("encode example %d: %w", i, err)
			}
		}
		return nil
	})
}

// WriteJSON writes v as indented JSON.
func (w *Writer) WriteJSON(path string, v any) error {
	return writeAtomic(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

func writeAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
