// Package audit delivers access records for usage logging as JSON Lines,
// either to a writer or to daily rotated files with a size cap and
// retention cleanup.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// accessFilePattern matches access-YYYY-MM-DD.jsonl and access-YYYY-MM-DD-N.jsonl.
var accessFilePattern = regexp.MustCompile(`^access-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.jsonl$`)

type logFile struct {
	name   string
	date   string
	suffix int
}

func parseLogFilename(name string) (logFile, bool) {
	m := accessFilePattern.FindStringSubmatch(name)
	if m == nil {
		return logFile{}, false
	}
	lf := logFile{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return logFile{}, false
		}
		lf.suffix = n
	}
	return lf, true
}

func logFilename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("access-%s.jsonl", date)
	}
	return fmt.Sprintf("access-%s-%d.jsonl", date, suffix)
}

// FileConfig configures FileSink.
type FileConfig struct {
	// Dir holds the access log files.
	Dir string
	// RetentionDays is how long files are kept (default 30).
	RetentionDays int
	// MaxFileSizeMB triggers rotation within a day (default 100).
	MaxFileSizeMB int
}

// FileSink appends access records to one file per UTC day.
type FileSink struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	logger        *slog.Logger

	mu     sync.Mutex
	file   *os.File
	date   string
	size   int64
	suffix int
	closed bool
}

// NewFileSink creates the directory if needed, removes files past the
// retention period, and opens today's file.
func NewFileSink(cfg FileConfig, logger *slog.Logger) (*FileSink, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create access log directory: %w", err)
	}

	s := &FileSink{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
	}
	s.Cleanup(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	today := time.Now().UTC().Format(time.DateOnly)
	if err := s.openLocked(today, s.highestSuffix(today)); err != nil {
		return nil, err
	}
	return s, nil
}

// SendLog appends record as one JSON line, rotating by record date and size.
func (s *FileSink) SendLog(_ context.Context, record outbound.AccessRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal access record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("access log closed")
	}
	date := record.Timestamp.UTC().Format(time.DateOnly)
	switch {
	case date != s.date:
		if err := s.openLocked(date, s.highestSuffix(date)); err != nil {
			return fmt.Errorf("date rotation: %w", err)
		}
	case s.size >= s.maxFileSize:
		if err := s.openLocked(s.date, s.suffix+1); err != nil {
			return fmt.Errorf("size rotation: %w", err)
		}
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write access record: %w", err)
	}
	return nil
}

// Cleanup deletes files dated before the retention window ending at now.
func (s *FileSink) Cleanup(now time.Time) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("access log cleanup: failed to read directory", "dir", s.dir, "error", err)
		return 0
	}
	cutoff := now.UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, e := range entries {
		lf, ok := parseLogFilename(e.Name())
		if !ok {
			continue
		}
		day, err := time.Parse(time.DateOnly, lf.date)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Error("access log cleanup: failed to delete file", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("access log cleanup completed", "deleted", deleted)
	}
	return deleted
}

// Files lists the access log files in chronological order.
func (s *FileSink) Files() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var files []logFile
	for _, e := range entries {
		if lf, ok := parseLogFilename(e.Name()); ok {
			files = append(files, lf)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

// Close syncs and closes the current file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	_ = s.file.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) highestSuffix(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		if lf, ok := parseLogFilename(e.Name()); ok && lf.date == date && lf.suffix > highest {
			highest = lf.suffix
		}
	}
	return highest
}

// openLocked switches to the file for date and suffix. Must be called with s.mu held.
func (s *FileSink) openLocked(date string, suffix int) error {
	if s.file != nil {
		_ = s.file.Sync()
		_ = s.file.Close()
		s.file = nil
	}
	name := logFilename(date, suffix)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", name, err)
	}
	s.file, s.date, s.suffix, s.size = f, date, suffix, info.Size()
	return nil
}

// WriterSink writes access records as JSON lines to w.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// SendLog writes record.
func (s *WriterSink) SendLog(_ context.Context, record outbound.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record); err != nil {
		return fmt.Errorf("write access record: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *WriterSink) Close() error { return nil }

// Sink is an AuditSink that holds resources.
type Sink interface {
	outbound.AuditSink
	io.Closer
}

// Open returns the sink for output: "stdout" or "file://<dir>". For file
// output, cfg.Dir is replaced by the directory from output.
func Open(output string, cfg FileConfig, logger *slog.Logger) (Sink, error) {
	switch {
	case output == "" || output == "stdout":
		return NewWriterSink(os.Stdout), nil
	case strings.HasPrefix(output, "file://"):
		cfg.Dir = strings.TrimPrefix(output, "file://")
		return NewFileSink(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported audit output %q", output)
	}
}

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = (*WriterSink)(nil)
)
