package catalog

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by AcquireLock when another load holds the lock.
var ErrLocked = errors.New("catalog load already running")

// AcquireLock takes an exclusive advisory lock on path, creating the file if
// needed, so that only one loader upserts into the store at a time. The
// returned func releases the lock.
func AcquireLock(path string) (func() error, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held", ErrLocked, path)
	}
	return fl.Unlock, nil
}
