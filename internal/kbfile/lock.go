package kbfile

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Lock when another process holds the KB file.
var ErrLocked = errors.New("KB file is in use by another kbmatch run")

// Lock takes an advisory lock on path+".lock" so that only one process writes a
// KB file at a time. It retries until timeout and returns the release function.
func Lock(path string, timeout time.Duration) (func(), error) {
	lockPath := path + ".lock"
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot lock %s: %w", lockPath, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if !time.Now().Before(deadline) {
			return func() {}, fmt.Errorf("%w (lock: %s)", ErrLocked, lockPath)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
