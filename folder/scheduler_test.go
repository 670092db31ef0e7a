package folder

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerCoalescesWork(t *testing.T) {
	scheduler := NewScheduler(time.Hour, time.Hour, lib.NewTestLogger(t, ""))
	first := newTestFolder(t, writeMailbox(t, threeMessages()), Config{Scheduler: scheduler})
	second := newTestFolder(t, writeMailbox(t, threeMessages()), Config{Scheduler: scheduler})

	for _, folder := range []*Folder{first, second} {
		messages := mustMessages(t, folder)
		for _, msg := range messages {
			require.NoError(t, folder.SetFlag(msg, FlagMarked, true))
		}
	}
	status, pending := scheduler.Pending()
	assert.Equal(t, 2, status)
	assert.Equal(t, 2, pending)

	scheduler.Forget(second)
	status, pending = scheduler.Pending()
	assert.Equal(t, 1, status)
	assert.Equal(t, 1, pending)

	require.NoError(t, scheduler.Close(context.Background()))
	status, pending = scheduler.Pending()
	assert.Equal(t, 0, status)
	assert.Equal(t, 0, pending)

	summaryDirty, flagsDirty := first.Dirty()
	assert.False(t, summaryDirty)
	assert.False(t, flagsDirty)
	state, err := summary.Peek(first.SummaryPath())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), state.Total)

	summaryDirty, flagsDirty = second.Dirty()
	assert.True(t, summaryDirty)
	assert.True(t, flagsDirty)

	// closed: nothing is scheduled anymore
	msg, err := second.Message(0)
	require.NoError(t, err)
	require.NoError(t, second.SetFlag(msg, FlagRead, true))
	status, pending = scheduler.Pending()
	assert.Equal(t, 0, status)
	assert.Equal(t, 0, pending)
}

func TestSchedulerRetriesAfterFailure(t *testing.T) {
	path := writeMailbox(t, threeMessages())
	scheduler := NewScheduler(20*time.Millisecond, time.Hour, lib.NewTestLogger(t, ""))
	folder := newTestFolder(t, path, Config{
		Scheduler: scheduler,
		Options:   Options{LockTimeout: 10 * time.Millisecond},
	})
	msg, err := folder.Message(0)
	require.NoError(t, err)

	// somebody else holds the lock
	lock, err := acquireLock(path, time.Second, time.Minute, lib.NewTestLogger(t, ""))
	require.NoError(t, err)
	require.NoError(t, folder.SetFlag(msg, FlagRead, true))

	time.Sleep(100 * time.Millisecond)
	_, flagsDirty := folder.Dirty()
	assert.True(t, flagsDirty)

	require.NoError(t, lock.release())
	require.Eventually(t, func() bool {
		_, flagsDirty := folder.Dirty()
		return !flagsDirty
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, scheduler.Close(context.Background()))
}

func TestSchedulerReloadsModifiedFolder(t *testing.T) {
	path := writeMailbox(t, threeMessages())
	scheduler := NewScheduler(20*time.Millisecond, time.Hour, lib.NewTestLogger(t, ""))
	folder := newTestFolder(t, path, Config{Scheduler: scheduler})
	msg, err := folder.Message(0)
	require.NoError(t, err)
	require.NoError(t, folder.SetFlag(msg, FlagRead, true))

	// another program appends a message before the status is written
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = file.WriteString(testMessage{id: "4@example.com", status: "0000"}.String())
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.Eventually(t, func() bool {
		_, flagsDirty := folder.Dirty()
		return !flagsDirty
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, scheduler.Close(context.Background()))

	assert.Equal(t, 2, strings.Count(readFile(t, path), statusHeader+": 0001"))
	reread := mustMessages(t, newTestFolder(t, path, Config{}))
	require.Len(t, reread, 4)
	assert.True(t, reread[0].Has(FlagRead))
}
