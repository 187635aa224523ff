package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"OpinionsScanner/internal/domain"
	"OpinionsScanner/internal/ports"
)

const lockRetryDelay = 100 * time.Millisecond

// FileLedgerStore keeps the outstanding ledger in a text file, one URL per
// line with an optional tab-separated attempt count. A sibling .lock file
// serialises read-modify-persist cycles across processes.
type FileLedgerStore struct {
	path   string
	logger *slog.Logger
}

var _ ports.LedgerStore = (*FileLedgerStore)(nil)

// NewFileLedgerStore creates the parent directory when it does not exist yet.
func NewFileLedgerStore(path string, logger *slog.Logger) (*FileLedgerStore, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileLedgerStore{path: path, logger: logger}, nil
}

// Acquire blocks until the lock is held or ctx is done.
func (s *FileLedgerStore) Acquire(ctx context.Context) (ports.LedgerHandle, error) {
	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock ledger: %s is held elsewhere", lock.Path())
	}
	s.logger.Debug("ledger locked", "path", s.path)
	return &fileLedgerHandle{store: s, lock: lock}, nil
}

type fileLedgerHandle struct {
	store *FileLedgerStore
	lock  *flock.Flock
}

// Load treats a missing file as an empty ledger.
func (h *fileLedgerHandle) Load(_ context.Context) (domain.Ledger, error) {
	data, err := os.ReadFile(h.store.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewLedger(), nil
	}
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("read ledger: %w", err)
	}
	return parseLedger(data, h.store.logger), nil
}

// Save replaces the file atomically: temp file, fsync, rename.
func (h *fileLedgerHandle) Save(_ context.Context, ledger domain.Ledger) error {
	dir := filepath.Dir(h.store.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(h.store.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(formatLedger(ledger)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, h.store.path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger: %w", err)
	}

	h.store.logger.Debug("ledger saved", "path", h.store.path, "entries", ledger.Len())
	return nil
}

func (h *fileLedgerHandle) Release() error {
	if err := h.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock ledger: %w", err)
	}
	return nil
}

func parseLedger(data []byte, logger *slog.Logger) domain.Ledger {
	var entries []domain.LedgerEntry
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		url, count, hasCount := strings.Cut(line, "\t")
		entry := domain.LedgerEntry{URL: strings.TrimSpace(url)}
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || n < 0 {
				logger.Warn("ledger line has a bad attempt count", "line", line)
				n = 0
			}
			entry.Attempts = n
		}
		entries = append(entries, entry)
	}
	return domain.NewLedger(entries...)
}

func formatLedger(ledger domain.Ledger) []byte {
	var buf bytes.Buffer
	for _, e := range ledger.Entries() {
		buf.WriteString(e.URL)
		if e.Attempts > 0 {
			buf.WriteByte('\t')
			buf.WriteString(strconv.Itoa(e.Attempts))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
