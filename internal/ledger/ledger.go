// Package ledger records catalog ids that have been fully processed so a
// later fetch run can skip them. The file holds one decimal id per line.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/TobiSchelling/gamerec/internal/logging"
)

// Ledger is an append-only set of processed ids backed by a file.
type Ledger struct {
	mu   sync.Mutex
	path string
	file *os.File
	seen map[int64]struct{}
}

// Open loads the existing ledger at path (if any) and opens it for appending.
// Unparsable lines, such as a line torn by a crash mid-write, are skipped.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	seen, err := load(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := terminateLastLine(path, f); err != nil {
		f.Close()
		return nil, err
	}

	return &Ledger{path: path, file: f, seen: seen}, nil
}

// terminateLastLine appends a newline when the file ends mid-line so the
// next id does not get glued onto a torn write.
func terminateLastLine(path string, f *os.File) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("reading ledger tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.WriteString("\n"); err != nil {
		return fmt.Errorf("terminating ledger line: %w", err)
	}
	return nil
}

// Load reads the ids recorded at path. A missing file is an empty ledger.
func Load(path string) (map[int64]struct{}, error) {
	return load(path)
}

func load(path string) (map[int64]struct{}, error) {
	seen := make(map[int64]struct{})

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			logging.Warn().Str("path", path).Int("line", line).Str("value", text).Msg("skipping malformed ledger line")
			continue
		}
		seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}
	return seen, nil
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Append records id and returns only after the write is synced to disk.
func (l *Ledger) Append(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("ledger %s is closed", l.path)
	}
	if _, err := l.file.WriteString(strconv.FormatInt(id, 10) + "\n"); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}
	l.seen[id] = struct{}{}
	return nil
}

// Len returns the number of distinct recorded ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
