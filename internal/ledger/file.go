package ledger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stocksignal/internal/model"
)

// File is the canonical ledger: an append-only text file with one
// "<YYYY-MM-DD>_<symbol>" line per record.
//
// The set is held in memory and refreshed from the file tail under an
// exclusive advisory lock before every write, so several processes may share
// one file without duplicating or interleaving lines.
type File struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	set    map[string]struct{}
	offset int64 // bytes of the file already folded into set
}

// OpenFile opens (or creates) the ledger file at path and loads its records.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger file: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger file: mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger file: open: %w", err)
	}

	l := &File{path: path, f: f, set: make(map[string]struct{})}
	if err := l.refresh(); err != nil {
		f.Close()
		return nil, err
	}

	log.Printf("[ledger] file ledger at %s (%d records)", path, len(l.set))
	return l, nil
}

func (l *File) Contains(_ context.Context, rec model.NotificationRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.refresh(); err != nil {
		return false, err
	}
	_, ok := l.set[rec.Key()]
	return ok, nil
}

func (l *File) Record(ctx context.Context, rec model.NotificationRecord) error {
	_, err := l.Claim(ctx, rec)
	return err
}

func (l *File) Claim(_ context.Context, rec model.NotificationRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := lockFile(l.f); err != nil {
		return false, fmt.Errorf("ledger file: lock: %w", err)
	}
	defer unlockFile(l.f)

	// Another process may have appended since our last read.
	if err := l.refresh(); err != nil {
		return false, err
	}
	if err := l.sealTail(); err != nil {
		return false, err
	}

	key := rec.Key()
	if _, ok := l.set[key]; ok {
		return false, nil
	}

	n, err := l.f.WriteString(key + "\n")
	if err != nil {
		return false, fmt.Errorf("ledger file: append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return false, fmt.Errorf("ledger file: sync: %w", err)
	}
	l.set[key] = struct{}{}
	l.offset += int64(n)
	return true, nil
}

// Prune rewrites the file in place without the records dated before the cutoff.
// The file is truncated rather than replaced so other processes keep a valid handle.
func (l *File) Prune(_ context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := lockFile(l.f); err != nil {
		return 0, fmt.Errorf("ledger file: lock: %w", err)
	}
	defer unlockFile(l.f)

	if err := l.refresh(); err != nil {
		return 0, err
	}

	cutoff := model.Day(before)
	keep := make([]string, 0, len(l.set))
	removed := 0
	for key := range l.set {
		rec, err := model.ParseRecordKey(key)
		if err != nil {
			continue
		}
		if rec.Date.Before(cutoff) {
			removed++
			continue
		}
		keep = append(keep, key)
	}
	if removed == 0 {
		return 0, nil
	}

	recs := make([]model.NotificationRecord, 0, len(keep))
	for _, key := range keep {
		rec, _ := model.ParseRecordKey(key)
		recs = append(recs, rec)
	}
	sortRecords(recs)

	var b strings.Builder
	for _, rec := range recs {
		b.WriteString(rec.Key())
		b.WriteByte('\n')
	}

	if err := l.f.Truncate(0); err != nil {
		return 0, fmt.Errorf("ledger file: truncate: %w", err)
	}
	n, err := l.f.WriteString(b.String())
	if err != nil {
		return 0, fmt.Errorf("ledger file: rewrite: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return 0, fmt.Errorf("ledger file: sync: %w", err)
	}

	l.set = make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		l.set[rec.Key()] = struct{}{}
	}
	l.offset = int64(n)

	log.Printf("[ledger] pruned %d records before %s from %s", removed, model.DateKey(cutoff), l.path)
	return removed, nil
}

func (l *File) List(_ context.Context) ([]model.NotificationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.refresh(); err != nil {
		return nil, err
	}
	recs := make([]model.NotificationRecord, 0, len(l.set))
	for key := range l.set {
		rec, err := model.ParseRecordKey(key)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sortRecords(recs)
	return recs, nil
}

func (l *File) Ping(_ context.Context) error {
	_, err := l.f.Stat()
	return err
}

func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// refresh folds any bytes appended since the last read into the set. If the
// file shrank (pruned by another process) the set is rebuilt from scratch.
// Caller holds l.mu.
func (l *File) refresh() error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("ledger file: stat: %w", err)
	}
	size := info.Size()
	if size == l.offset {
		return nil
	}
	if size < l.offset {
		l.set = make(map[string]struct{})
		l.offset = 0
	}

	r := bufio.NewReader(io.NewSectionReader(l.f, l.offset, size-l.offset))
	var read int64
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			// An unterminated tail stays unconsumed, but a complete key in it
			// still counts as recorded.
			if key := strings.TrimSpace(line); key != "" {
				if _, perr := model.ParseRecordKey(key); perr == nil {
					l.set[key] = struct{}{}
				}
			}
			break
		}
		if err != nil {
			return fmt.Errorf("ledger file: read: %w", err)
		}
		read += int64(len(line))

		key := strings.TrimSpace(line)
		if key == "" {
			continue
		}
		if _, perr := model.ParseRecordKey(key); perr != nil {
			log.Printf("[ledger] skipping malformed line in %s: %q", l.path, key)
			continue
		}
		l.set[key] = struct{}{}
	}
	l.offset += read
	return nil
}

// sealTail terminates a trailing line left without a newline (crashed write,
// hand edit) so the next append starts on a line of its own.
// Caller holds l.mu and the file lock.
func (l *File) sealTail() error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("ledger file: stat: %w", err)
	}
	if info.Size() <= l.offset {
		return nil
	}
	if _, err := l.f.WriteString("\n"); err != nil {
		return fmt.Errorf("ledger file: terminate tail: %w", err)
	}
	log.Printf("[ledger] terminated unfinished last line in %s", l.path)
	return l.refresh()
}
