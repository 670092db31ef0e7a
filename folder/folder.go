package folder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/creativeprojects/mailfolder/summary"
)

// State of the in-memory copy of a folder
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FlushScheduler delays the write-back of a folder
type FlushScheduler interface {
	// ScheduleStatus asks for a FlushStatus later
	ScheduleStatus(folder *Folder)
	// ScheduleSummary asks for a FlushSummary later
	ScheduleSummary(folder *Folder)
}

// UIDAllocator gives the UID of appended messages
type UIDAllocator interface {
	NextUID(folder string) (uint32, error)
}

type Config struct {
	Options   Options
	Table     *intern.Table
	Scheduler FlushScheduler
	UIDs      UIDAllocator
	Observer  Observer
	Logger    lib.Logger
}

// Folder is a mailbox file and its summary file.
// The mailbox is loaded lazily on first access.
type Folder struct {
	name        string
	path        string
	summaryPath string
	options     Options
	table       *intern.Table
	scheduler   FlushScheduler
	uids        UIDAllocator
	observer    Observer
	log         lib.Logger

	mutex        sync.Mutex
	state        State
	messages     []*Message
	counts       summary.Counts
	summaryDirty bool
	flagsDirty   bool
	// last verified state of the mailbox file
	modTime   time.Time
	size      int64
	lastCheck time.Time
	stats     ScanStats
}

// New creates a folder with default options and no background flush
func New(path string) *Folder {
	return NewWithConfig(path, Config{})
}

func NewWithConfig(path string, config Config) *Folder {
	if config.Table == nil {
		config.Table = intern.NewTable()
	}
	if config.Logger == nil {
		config.Logger = &lib.NoLog{}
	}
	name := filepath.Base(path)
	return &Folder{
		name:        name,
		path:        path,
		summaryPath: SummaryPath(path),
		options:     config.Options.withDefaults(),
		table:       config.Table,
		scheduler:   config.Scheduler,
		uids:        config.UIDs,
		observer:    config.Observer,
		log:         lib.WithPrefix(config.Logger, name),
	}
}

func (f *Folder) Name() string {
	return f.name
}

// Path of the mailbox file
func (f *Folder) Path() string {
	return f.path
}

// SummaryPath of the summary file
func (f *Folder) SummaryPath() string {
	return f.summaryPath
}

func (f *Folder) State() State {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.state
}

// Dirty returns the summary and flags dirty markers
func (f *Folder) Dirty() (summaryDirty, flagsDirty bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.summaryDirty, f.flagsDirty
}

// Stats returns the scanner statistics since the folder was created
func (f *Folder) Stats() ScanStats {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.stats
}

// Load reads the mailbox, from its summary file when still valid
func (f *Folder) Load() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.loadLocked()
}

// EnsureFresh reloads the folder when the mailbox file was modified by someone else.
// Checks are done at most once per FreshnessInterval unless forced.
// It returns true when the folder was reloaded.
func (f *Folder) EnsureFresh(force bool) (bool, error) {
	f.mutex.Lock()
	events, err := f.ensureFreshLocked(force)
	f.mutex.Unlock()
	f.dispatch(events)
	return len(events) > 0, err
}

// Messages returns the messages in file order, loading the folder if needed
func (f *Folder) Messages() ([]*Message, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	err := f.loadLocked()
	if err != nil {
		return nil, err
	}
	return f.snapshot(), nil
}

func (f *Folder) MessageCount() (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	err := f.loadLocked()
	if err != nil {
		return 0, err
	}
	return len(f.messages), nil
}

// Message returns the message at index (starting at zero)
func (f *Folder) Message(index int) (*Message, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	err := f.loadLocked()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(f.messages) {
		return nil, fmt.Errorf("%w: index %d out of %d messages", lib.ErrMessageNotFound, index, len(f.messages))
	}
	return f.messages[index], nil
}

// Open returns the content of the message (headers and body, without the envelope line)
func (f *Folder) Open(msg *Message) (io.ReadCloser, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if msg == nil || msg.Folder() != f {
		return nil, lib.ErrMessageNotFound
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open mailbox %q: %w", f.name, err)
	}
	return &messageReader{
		SectionReader: io.NewSectionReader(file, msg.HeaderOffset(), msg.Size()),
		file:          file,
	}, nil
}

// Status returns the counts of the folder, loading it if needed
func (f *Folder) Status() (mailbox.Status, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	err := f.loadLocked()
	if err != nil {
		return mailbox.Status{}, err
	}
	return mailbox.Status{
		Name:           f.name,
		PermanentFlags: PermanentFlags(),
		Messages:       f.counts.Total,
		Undeleted:      f.counts.Undeleted,
		Unseen:         f.counts.Unread,
		DeletedBytes:   f.counts.DeletedBytes,
		Size:           f.size,
	}, nil
}

// Counts returns the aggregates of a loaded folder
func (f *Folder) Counts() (summary.Counts, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.state != Loaded {
		return summary.Counts{}, lib.ErrNotLoaded
	}
	return f.counts, nil
}

// SetFlag sets or clears flags on a message of the folder
func (f *Folder) SetFlag(msg *Message, flag Flags, value bool) error {
	f.mutex.Lock()
	events, err := f.setFlagLocked(msg, flag, value)
	f.mutex.Unlock()
	f.dispatch(events)
	return err
}

// Sync writes all pending changes now
func (f *Folder) Sync() error {
	return errors.Join(f.FlushStatus(), f.FlushSummary())
}

// Close writes the pending changes and releases the messages.
// With expunge, the deleted messages are removed first: an error from the compaction is returned as is.
func (f *Folder) Close(expunge bool) error {
	if expunge {
		_, err := f.Expunge()
		if err != nil {
			return err
		}
	}
	err := f.Sync()
	if err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.unloadLocked()
	return nil
}

func (f *Folder) snapshot() []*Message {
	messages := make([]*Message, len(f.messages))
	copy(messages, f.messages)
	return messages
}

func (f *Folder) setFlagLocked(msg *Message, flag Flags, value bool) ([]event, error) {
	if f.state != Loaded {
		return nil, lib.ErrNotLoaded
	}
	if msg == nil || msg.Folder() != f {
		return nil, lib.ErrMessageNotFound
	}
	if flag == 0 || flag&FlagDirty != 0 {
		return nil, fmt.Errorf("%w: %s", lib.ErrInvalidFlag, flag)
	}
	old := msg.Flags()
	flags := old &^ flag
	if value {
		flags = old | flag
	}
	if flags == old {
		return nil, nil
	}

	before := contribution(old, msg.Length())
	after := contribution(flags, msg.Length())
	if before != after {
		counts := f.counts
		err := counts.Sub(before)
		if err != nil {
			return nil, f.invariant("counts out of sync: %v", err)
		}
		counts.Add(after)
		err = counts.Check()
		if err != nil {
			return nil, f.invariant("counts out of sync: %v", err)
		}
		f.counts = counts
	}

	if flags.Persisted() != old.Persisted() {
		flags |= FlagDirty
		f.flagsDirty = true
		if f.scheduler != nil {
			f.scheduler.ScheduleStatus(f)
		}
	}
	msg.setFlags(flags)
	f.markSummaryDirty()
	return []event{{kind: eventChanged, message: msg, old: old, new: flags}}, nil
}

func (f *Folder) markSummaryDirty() {
	f.summaryDirty = true
	if f.scheduler != nil {
		f.scheduler.ScheduleSummary(f)
	}
}

func (f *Folder) loadLocked() (err error) {
	switch f.state {
	case Loaded:
		return nil
	case Loading:
		return f.invariant("load started while already loading")
	}
	if len(f.messages) > 0 {
		return f.invariant("%d messages in an unloaded folder", len(f.messages))
	}
	f.state = Loading
	defer func() {
		if err != nil {
			f.state = Unloaded
			f.messages = nil
			f.counts = summary.Counts{}
			return
		}
		f.state = Loaded
	}()

	f.lastCheck = time.Now()
	_, err = os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.messages = make([]*Message, 0)
		f.counts = summary.Counts{}
		f.modTime, f.size = time.Time{}, 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open mailbox %q: %w", f.name, err)
	}

	lock, err := f.lock()
	if err != nil {
		return err
	}
	defer f.unlock(lock)

	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("cannot open mailbox %q: %w", f.name, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("cannot open mailbox %q: %w", f.name, err)
	}

	messages, counts, dirty, err := f.readMessages(file, info.ModTime(), info.Size())
	if err != nil {
		return err
	}
	for _, msg := range messages {
		msg.folder.Store(f)
		if msg.Has(FlagDirty) && msg.HasStatusHeader() {
			f.flagsDirty = true
		}
	}
	f.messages = messages
	f.counts = counts
	f.modTime, f.size = info.ModTime(), info.Size()
	if dirty {
		f.markSummaryDirty()
	}
	if f.flagsDirty && f.scheduler != nil {
		f.scheduler.ScheduleStatus(f)
	}
	return nil
}

// readMessages returns the messages from the summary file when it's still valid,
// scanning only the part of the mailbox it doesn't cover
func (f *Folder) readMessages(file *os.File, modTime time.Time, size int64) ([]*Message, summary.Counts, bool, error) {
	cache, err := summary.Load(f.summaryPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.log.Printf("discarding summary file: %v", err)
		}
		cache = nil
	}
	if cache != nil {
		err = checkRecords(cache.Records, cache.Size)
		if err == nil && cache.Size > size {
			err = fmt.Errorf("summary covers %d bytes but mailbox is %d bytes", cache.Size, size)
		}
		if err != nil {
			f.log.Printf("discarding summary file: %v", err)
			cache = nil
		}
	}

	start := int64(0)
	messages := make([]*Message, 0)
	if cache != nil {
		for _, record := range cache.Records {
			messages = append(messages, messageFromRecord(f.table, record))
		}
		if cache.Matches(modTime, size) {
			counts := countMessages(messages)
			if counts != cache.Counts {
				f.log.Printf("summary counts %+v don't match its records %+v", cache.Counts, counts)
				return messages, counts, true, nil
			}
			f.log.Printf("loaded %d messages from summary", len(messages))
			return messages, counts, false, nil
		}
		start = cache.Size
		if cache.Size == size || cache.Size == 0 || !f.envelopeAt(file, size, cache.Size) {
			// not a simple append since the summary was written
			start = 0
			messages = messages[:0]
		}
	}

	scanner := NewScanner(file, size, f.table, f.options.ContentLengthSlack, f.log)
	scanned, _, err := scanner.Scan(start)
	f.stats.add(scanner.Stats())
	if err != nil {
		return nil, summary.Counts{}, false, fmt.Errorf("cannot load mailbox %q: %w", f.name, err)
	}
	if start > 0 {
		f.log.Printf("loaded %d messages from summary, scanned %d new messages from offset %d", len(messages), len(scanned), start)
	} else {
		f.log.Printf("scanned %d messages (%d bytes)", len(scanned), size)
	}
	messages = append(messages, scanned...)
	return messages, countMessages(messages), true, nil
}

func (f *Folder) envelopeAt(file io.ReaderAt, size, offset int64) bool {
	found, err := envelopeAt(file, size, offset)
	if err != nil {
		f.log.Printf("cannot verify message boundary at offset %d: %v", offset, err)
		return false
	}
	return found
}

// checkRecords verifies the layout of the records of a summary file
func checkRecords(records []summary.Record, size int64) error {
	previousEnd := int64(0)
	for i, record := range records {
		end := record.Offset + record.Length
		headerOffset := record.Offset + record.EnvelopeLength
		switch {
		case record.Offset < previousEnd:
			return fmt.Errorf("record %d at offset %d overlaps the previous one", i, record.Offset)
		case record.EnvelopeLength <= 0 || record.Length < record.EnvelopeLength:
			return fmt.Errorf("record %d has an invalid length", i)
		case record.BodyOffset < headerOffset || record.BodyOffset > end:
			return fmt.Errorf("record %d has an invalid body offset", i)
		case end > size:
			return fmt.Errorf("record %d ends after the summarized size", i)
		case record.StatusOffset >= 0 && (record.StatusOffset < headerOffset || record.StatusOffset+statusWidth > record.BodyOffset):
			return fmt.Errorf("record %d has an invalid status offset", i)
		case record.MessageID == "":
			return fmt.Errorf("record %d has no message-ID", i)
		}
		previousEnd = end
	}
	return nil
}

func (f *Folder) ensureFreshLocked(force bool) ([]event, error) {
	if f.state != Loaded {
		return nil, nil
	}
	now := time.Now()
	if !force && now.Sub(f.lastCheck) < f.options.FreshnessInterval {
		return nil, nil
	}
	f.lastCheck = now
	modTime, size, err := f.statFile()
	if err != nil {
		return nil, err
	}
	if size == f.size && modTime.Equal(f.modTime) {
		return nil, nil
	}
	f.log.Printf("mailbox file changed on disk (%d bytes, was %d): reloading", size, f.size)
	pending := f.pendingFlags()
	removed := f.unloadLocked()
	events := []event{{kind: eventRemoved, messages: removed}}
	err = f.loadLocked()
	if err != nil {
		return events, err
	}
	err = f.restoreFlagsLocked(pending)
	if err != nil {
		return events, err
	}
	events = append(events, event{kind: eventAdded, messages: f.snapshot()})
	return events, nil
}

// pendingFlags returns the flags not yet written to the mailbox file, by message-ID in file order
func (f *Folder) pendingFlags() map[intern.Handle][]Flags {
	if !f.flagsDirty {
		return nil
	}
	pending := make(map[intern.Handle][]Flags)
	for _, msg := range f.messages {
		if msg.Has(FlagDirty) {
			id := msg.MessageIDHandle()
			pending[id] = append(pending[id], msg.Flags())
		}
	}
	return pending
}

// restoreFlagsLocked applies the pending flags to the reloaded messages with the same message-ID
func (f *Folder) restoreFlagsLocked(pending map[intern.Handle][]Flags) error {
	if len(pending) == 0 {
		return nil
	}
	restored := 0
	for _, msg := range f.messages {
		id := msg.MessageIDHandle()
		queue := pending[id]
		if len(queue) == 0 {
			continue
		}
		pending[id] = queue[1:]
		old := msg.Flags()
		if old.Persisted() == queue[0].Persisted() {
			continue
		}
		flags := old&^old.Persisted() | queue[0].Persisted() | FlagDirty
		counts := f.counts
		err := counts.Sub(contribution(old, msg.Length()))
		if err != nil {
			return f.invariant("counts out of sync: %v", err)
		}
		counts.Add(contribution(flags, msg.Length()))
		f.counts = counts
		msg.setFlags(flags)
		restored++
	}
	if restored == 0 {
		return nil
	}
	f.log.Printf("restored the pending flags of %d messages", restored)
	f.flagsDirty = true
	if f.scheduler != nil {
		f.scheduler.ScheduleStatus(f)
	}
	f.markSummaryDirty()
	return nil
}

// unloadLocked detaches all the messages and returns them
func (f *Folder) unloadLocked() []*Message {
	removed := f.messages
	for _, msg := range removed {
		msg.folder.Store(nil)
	}
	f.messages = nil
	f.counts = summary.Counts{}
	f.state = Unloaded
	f.summaryDirty = false
	f.flagsDirty = false
	return removed
}

// statFile returns a zero time and size when the mailbox file doesn't exist
func (f *Folder) statFile() (time.Time, int64, error) {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, 0, nil
	}
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("cannot read mailbox %q: %w", f.name, err)
	}
	return info.ModTime(), info.Size(), nil
}

func (f *Folder) lock() (*fileLock, error) {
	return acquireLock(f.path, f.options.LockTimeout, f.options.LockStaleAge, f.log)
}

func (f *Folder) unlock(lock *fileLock) {
	err := lock.release()
	if err != nil {
		f.log.Print(err)
	}
}

type messageReader struct {
	*io.SectionReader
	file *os.File
}

func (r *messageReader) Close() error {
	return r.file.Close()
}
