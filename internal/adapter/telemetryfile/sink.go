// Package telemetryfile appends telemetry records to a JSONL file.
package telemetryfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Sink writes one JSON object per line. It implements domain.TelemetrySink.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	return &Sink{file: f}, nil
}

// Emit appends rec as a single line. Each line is written with one Write call
// so concurrent writers never interleave within a record.
func (s *Sink) Emit(_ context.Context, rec domain.Telemetry) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize telemetry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("telemetry file closed")
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Close closes the underlying file. Further Emit calls fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadAll parses every record in a JSONL telemetry file. Blank and
// malformed lines are skipped and counted.
func ReadAll(r io.Reader) (records []domain.Telemetry, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.Telemetry
		if json.Unmarshal(line, &rec) != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, skipped, fmt.Errorf("scan telemetry: %w", err)
	}
	return records, skipped, nil
}
