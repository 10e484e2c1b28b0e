package harvest

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/crypto/sha3"
)

// Lock is an advisory file lock that keeps a second harvester off a feed.
// Throughput scales by harvesting disjoint feeds, never one feed twice.
type Lock struct {
	path string
	fl   *flock.Flock
}

// NewLock creates the lock of a feed inside dir. The file name is derived
// from the feed URL so that any URL maps to a safe name.
func NewLock(dir, feedURL string) *Lock {
	sum := sha3.Sum256([]byte(feedURL))
	path := filepath.Join(dir, "harvest-"+hex.EncodeToString(sum[:8])+".lock")
	return &Lock{path: path, fl: flock.New(path)}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryLock acquires the lock without blocking. It returns ErrFeedLocked
// when another process holds it.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedLocked, l.path)
	}
	return nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
