package folder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creativeprojects/mailfolder/lib"
)

// Scheduler runs the delayed write-back of the folders: one status timer per folder,
// and one summary timer shared by all folders and drained by a single worker.
// Timers only exist while there's pending work.
type Scheduler struct {
	statusDelay  time.Duration
	summaryDelay time.Duration
	log          lib.Logger

	mutex        sync.Mutex
	closed       bool
	statusTimers map[*Folder]*time.Timer
	pending      []*Folder
	pendingSet   map[*Folder]bool
	summaryTimer *time.Timer

	worker  sync.Mutex
	running sync.WaitGroup
}

// NewScheduler creates a scheduler. A zero delay uses the default.
func NewScheduler(statusDelay, summaryDelay time.Duration, logger lib.Logger) *Scheduler {
	if statusDelay <= 0 {
		statusDelay = DefaultStatusFlushDelay
	}
	if summaryDelay <= 0 {
		summaryDelay = DefaultSummaryFlushDelay
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Scheduler{
		statusDelay:  statusDelay,
		summaryDelay: summaryDelay,
		log:          logger,
		statusTimers: make(map[*Folder]*time.Timer),
		pendingSet:   make(map[*Folder]bool),
	}
}

// ScheduleStatus starts the status timer of the folder, unless one is already running
func (s *Scheduler) ScheduleStatus(folder *Folder) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}
	if _, found := s.statusTimers[folder]; found {
		return
	}
	s.running.Add(1)
	s.statusTimers[folder] = time.AfterFunc(s.statusDelay, func() {
		defer s.running.Done()
		s.runStatus(folder)
	})
}

// ScheduleSummary adds the folder to the pending list and starts the summary timer if needed
func (s *Scheduler) ScheduleSummary(folder *Folder) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}
	if !s.pendingSet[folder] {
		s.pendingSet[folder] = true
		s.pending = append(s.pending, folder)
	}
	if s.summaryTimer != nil {
		return
	}
	s.running.Add(1)
	s.summaryTimer = time.AfterFunc(s.summaryDelay, func() {
		defer s.running.Done()
		s.runSummary()
	})
}

// Forget cancels any pending work on the folder
func (s *Scheduler) Forget(folder *Folder) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if timer, found := s.statusTimers[folder]; found {
		if timer.Stop() {
			s.running.Done()
		}
		delete(s.statusTimers, folder)
	}
	if s.pendingSet[folder] {
		delete(s.pendingSet, folder)
		for i, pending := range s.pending {
			if pending == folder {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				break
			}
		}
	}
}

// Pending returns the number of folders waiting for a status flush and for a summary flush
func (s *Scheduler) Pending() (status, summary int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.statusTimers), len(s.pending)
}

func (s *Scheduler) runStatus(folder *Folder) {
	s.mutex.Lock()
	delete(s.statusTimers, folder)
	s.mutex.Unlock()

	err := folder.FlushStatus()
	if errors.Is(err, lib.ErrFolderModified) {
		// the reload keeps the pending flags and schedules them again
		_, err = folder.EnsureFresh(true)
	}
	if err != nil {
		s.log.Printf("cannot write status of mailbox %q: %v", folder.Name(), err)
		s.ScheduleStatus(folder)
	}
}

func (s *Scheduler) runSummary() {
	s.worker.Lock()
	defer s.worker.Unlock()

	s.mutex.Lock()
	folders := s.pending
	s.pending = nil
	s.pendingSet = make(map[*Folder]bool)
	s.summaryTimer = nil
	s.mutex.Unlock()

	for _, folder := range folders {
		err := folder.FlushSummary()
		if err != nil {
			s.log.Printf("cannot write summary of mailbox %q: %v", folder.Name(), err)
			s.ScheduleSummary(folder)
		}
	}
}

// Close stops the timers and runs the pending work now. It waits for the running workers until ctx is done.
// Nothing is scheduled after Close.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	statusFolders := make([]*Folder, 0, len(s.statusTimers))
	for folder, timer := range s.statusTimers {
		if timer.Stop() {
			s.running.Done()
			statusFolders = append(statusFolders, folder)
		}
	}
	s.statusTimers = make(map[*Folder]*time.Timer)
	if s.summaryTimer != nil && s.summaryTimer.Stop() {
		s.running.Done()
	}
	s.summaryTimer = nil
	summaryFolders := s.pending
	s.pending = nil
	s.pendingSet = make(map[*Folder]bool)
	s.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	for _, folder := range statusFolders {
		errs = append(errs, folder.FlushStatus())
	}
	s.worker.Lock()
	defer s.worker.Unlock()
	for _, folder := range summaryFolders {
		errs = append(errs, folder.FlushSummary())
	}
	return errors.Join(errs...)
}
