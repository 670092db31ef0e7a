package folder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creativeprojects/mailfolder/lib"
)

const lockRetryDelay = 100 * time.Millisecond

// fileLock is an advisory lock on a mailbox file, shared with other processes
// through a lock file next to it. It must be released by the caller.
type fileLock struct {
	path string
	stop chan struct{}
	done chan struct{}
	log  lib.Logger
}

// acquireLock creates the lock file of the mailbox at path, waiting up to timeout for another owner to release it.
// A lock file older than staleAge is considered abandoned and taken over.
func acquireLock(path string, timeout, staleAge time.Duration, logger lib.Logger) (*fileLock, error) {
	lockFile := lockPath(path)
	deadline := time.Now().Add(timeout)
	for {
		err := createLockFile(lockFile)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("cannot lock %q: %w", path, err)
		}
		info, err := os.Stat(lockFile)
		if err == nil && time.Since(info.ModTime()) > staleAge {
			logger.Printf("taking over stale lock %q (last updated %s)", lockFile, info.ModTime().Format(time.RFC3339))
			_ = os.Remove(lockFile)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %q", lib.ErrMailboxLocked, path)
		}
		time.Sleep(lockRetryDelay)
	}

	lock := &fileLock{
		path: lockFile,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger,
	}
	go lock.heartbeat(staleAge / 2)
	return lock, nil
}

// createLockFile writes a temporary file then hard links it to the lock file:
// the link fails if the lock file already exists.
func createLockFile(lockFile string) error {
	dir, name := filepath.Split(lockFile)
	temp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tempName := temp.Name()
	defer os.Remove(tempName)

	_, err = temp.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	closeErr := temp.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	err = os.Link(tempName, lockFile)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}
	// no hard link on this filesystem
	file, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	return file.Close()
}

func (l *fileLock) heartbeat(interval time.Duration) {
	defer close(l.done)
	if interval <= 0 {
		<-l.stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			err := os.Chtimes(l.path, now, now)
			if err != nil {
				l.log.Printf("cannot refresh lock %q: %v", l.path, err)
			}
		}
	}
}

func (l *fileLock) release() error {
	if l == nil {
		return nil
	}
	close(l.stop)
	<-l.done
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot remove lock %q: %w", l.path, err)
	}
	return nil
}
