package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// fileLock guards a database path against concurrent use by another process.
type fileLock struct {
	fl *flock.Flock
}

func acquire(path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("persist: create directory for %s: %w", path, err)
	}
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("persist: lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("persist: %s is in use by another process (lock: %s)", path, lockPath)
	}
	return &fileLock{fl: fl}, nil
}

func (l *fileLock) release() {
	if l != nil {
		_ = l.fl.Unlock()
	}
}
