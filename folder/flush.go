package folder

import (
	"errors"
	"fmt"
	"os"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/summary"
)

// FlushStatus rewrites the status header of the messages whose flags changed.
// On error the folder stays dirty for a later retry.
func (f *Folder) FlushStatus() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state != Loaded || !f.flagsDirty {
		return nil
	}
	f.flagsDirty = false
	err := f.writeStatusLocked()
	if err != nil {
		f.flagsDirty = true
		return err
	}
	return nil
}

// FlushSummary writes the summary file.
// On error the folder stays dirty for a later retry.
func (f *Folder) FlushSummary() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state != Loaded || !f.summaryDirty {
		return nil
	}
	f.summaryDirty = false
	err := f.writeSummaryLocked()
	if err != nil {
		f.summaryDirty = true
		return err
	}
	return nil
}

func (f *Folder) writeStatusLocked() error {
	modTime, size, err := f.statFile()
	if err != nil {
		return err
	}
	if size != f.size || !modTime.Equal(f.modTime) {
		return fmt.Errorf("cannot write message status: %w", lib.ErrFolderModified)
	}

	lock, err := f.lock()
	if err != nil {
		return err
	}
	defer f.unlock(lock)

	file, err := os.OpenFile(f.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot write message status: %w", err)
	}
	written := 0
	buffer := make([]byte, statusWidth)
	for _, msg := range f.messages {
		flags := msg.Flags()
		if !flags.Has(FlagDirty) || !msg.HasStatusHeader() {
			continue
		}
		offset := msg.statusOffset.Load()
		_, err = file.ReadAt(buffer, offset)
		if err != nil {
			break
		}
		if _, ok := ParseStatusValue(buffer); !ok {
			f.log.Printf("no status header at offset %d: keeping flags of message %q in summary", offset, msg.MessageID())
			continue
		}
		_, err = file.WriteAt([]byte(flags.StatusValue()), offset)
		if err != nil {
			break
		}
		msg.setFlags(flags &^ FlagDirty)
		written++
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if written > 0 {
		// the summary holds the dirty bits and the modification time
		modTime, size, statErr := f.statFile()
		if statErr == nil {
			f.modTime, f.size = modTime, size
		}
		err = errors.Join(err, statErr)
		f.markSummaryDirty()
	}
	if err != nil {
		return fmt.Errorf("cannot write message status: %w", err)
	}
	f.log.Printf("updated status of %d messages", written)
	return nil
}

func (f *Folder) writeSummaryLocked() error {
	if f.size == 0 && f.modTime.IsZero() {
		// no mailbox file yet
		return nil
	}
	cache := &summary.Cache{
		State: summary.State{
			Format:  summary.Current,
			ModTime: f.modTime,
			Size:    f.size,
			Counts:  f.counts,
		},
		Records: make([]summary.Record, len(f.messages)),
	}
	for i, msg := range f.messages {
		cache.Records[i] = msg.record()
	}
	err := summary.Save(f.summaryPath, cache)
	if err != nil {
		return err
	}
	f.log.Printf("saved summary of %d messages", len(f.messages))
	return nil
}
