package folder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Inbox")
	lock, err := acquireLock(path, time.Second, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	assert.FileExists(t, lockPath(path))

	// nothing else left in the directory
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = acquireLock(path, 150*time.Millisecond, time.Minute, lib.NewTestLogger(t, ""))
	assert.ErrorIs(t, err, lib.ErrMailboxLocked)

	require.NoError(t, lock.release())
	assert.NoFileExists(t, lockPath(path))

	lock, err = acquireLock(path, time.Second, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	require.NoError(t, lock.release())
}

func TestLockWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Inbox")
	lock, err := acquireLock(path, time.Second, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = lock.release()
	}()
	second, err := acquireLock(path, 5*time.Second, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	require.NoError(t, second.release())
}

func TestStaleLockIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Inbox")
	require.NoError(t, os.WriteFile(lockPath(path), []byte("12345\n"), 0o600))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath(path), old, old))

	lock, err := acquireLock(path, 200*time.Millisecond, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	info, err := os.Stat(lockPath(path))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), info.ModTime(), 10*time.Second)
	require.NoError(t, lock.release())
}

func TestLockHeartbeat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Inbox")
	staleAge := 200 * time.Millisecond
	lock, err := acquireLock(path, time.Second, staleAge, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	defer lock.release()

	time.Sleep(3 * staleAge)
	info, err := os.Stat(lockPath(path))
	require.NoError(t, err)
	assert.Less(t, time.Since(info.ModTime()), staleAge)
}
