package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creativeprojects/mailfolder/catalog"
	"github.com/creativeprojects/mailfolder/cfg"
	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/creativeprojects/mailfolder/summary"
	"golang.org/x/sync/errgroup"
)

// maximum number of folders opened at the same time by StatusAll and Sync
const parallelFolders = 4

// Store is a directory of mailbox files sharing one interning table,
// one flush scheduler and one UID catalog.
type Store struct {
	root      string
	options   folder.Options
	table     *intern.Table
	scheduler *folder.Scheduler
	catalog   *catalog.Catalog
	observer  folder.Observer
	log       lib.Logger

	mutex   sync.Mutex
	folders map[string]*folder.Folder
	closed  bool
}

func New(config *cfg.Config, logger lib.Logger) (*Store, error) {
	return NewWithObserver(config, nil, logger)
}

// NewWithObserver creates a store sending the changes of every folder to observer
func NewWithObserver(config *cfg.Config, observer folder.Observer, logger lib.Logger) (*Store, error) {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	if config.Root == "" {
		return nil, errors.New("missing root directory")
	}
	err := os.MkdirAll(config.Root, 0o700)
	if err != nil {
		return nil, fmt.Errorf("cannot create root directory: %w", err)
	}
	uids, err := catalog.OpenWithLogger(config.CatalogFile(), logger)
	if err != nil {
		return nil, err
	}
	err = uids.Init()
	if err != nil {
		uids.Close()
		return nil, err
	}
	return &Store{
		root:      config.Root,
		options:   config.FolderOptions(),
		table:     intern.NewTable(),
		scheduler: folder.NewScheduler(config.StatusFlushDelay, config.SummaryFlushDelay, logger),
		catalog:   uids,
		observer:  observer,
		log:       logger,
		folders:   make(map[string]*folder.Folder),
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Table is the interning table shared by all folders of the store
func (s *Store) Table() *intern.Table {
	return s.table
}

// HistoryPath is the file keeping the import history of a folder
func (s *Store) HistoryPath(name string) string {
	return filepath.Join(s.root, "."+name+".history.json")
}

// List returns the names of the mailbox files, sorted
func (s *Store) List() ([]string, error) {
	if s.isClosed() {
		return nil, lib.ErrStoreClosed
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || folder.IsAuxiliaryFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Folder returns the folder of an existing mailbox file
func (s *Store) Folder(name string) (*folder.Folder, error) {
	err := validateName(name)
	if err != nil {
		return nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil, lib.ErrStoreClosed
	}
	if f, found := s.folders[name]; found {
		return f, nil
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", lib.ErrMailboxNotFound, name)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %q is not a file", lib.ErrInvalidName, name)
	}
	return s.openLocked(name), nil
}

// Create makes a new empty mailbox file
func (s *Store) Create(name string) (*folder.Folder, error) {
	err := validateName(name)
	if err != nil {
		return nil, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil, lib.ErrStoreClosed
	}
	file, err := os.OpenFile(filepath.Join(s.root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %q", lib.ErrMailboxExists, name)
		}
		return nil, err
	}
	err = file.Close()
	if err != nil {
		return nil, err
	}
	// a new file gets a new UIDVALIDITY
	err = s.catalog.Delete(name)
	if err != nil {
		return nil, err
	}
	_, err = s.catalog.Info(name)
	if err != nil {
		return nil, err
	}
	s.log.Printf("created mailbox %q", name)
	return s.openLocked(name), nil
}

// Delete removes the mailbox file with its summary, its history and its UIDs
func (s *Store) Delete(name string) error {
	err := validateName(name)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return lib.ErrStoreClosed
	}
	path := filepath.Join(s.root, name)
	if f, found := s.folders[name]; found {
		s.scheduler.Forget(f)
		delete(s.folders, name)
	}
	err = os.Remove(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", lib.ErrMailboxNotFound, name)
		}
		return err
	}
	for _, auxiliary := range []string{folder.SummaryPath(path), s.HistoryPath(name)} {
		err = os.Remove(auxiliary)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Printf("cannot remove %q: %v", auxiliary, err)
		}
	}
	s.log.Printf("deleted mailbox %q", name)
	return s.catalog.Delete(name)
}

// Catalog returns the entries of the UID catalog, with or without a mailbox file
func (s *Store) Catalog() ([]mailbox.Info, error) {
	if s.isClosed() {
		return nil, lib.ErrStoreClosed
	}
	return s.catalog.List()
}

// Prune removes the catalog entries of the folders without a mailbox file, and returns their names
func (s *Store) Prune() ([]string, error) {
	entries, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	pruned := make([]string, 0)
	for _, entry := range entries {
		_, err = os.Stat(filepath.Join(s.root, entry.Name))
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return pruned, err
		}
		err = s.catalog.Delete(entry.Name)
		if err != nil {
			return pruned, err
		}
		pruned = append(pruned, entry.Name)
	}
	return pruned, nil
}

// BackupCatalog writes a copy of the UID catalog into filename
func (s *Store) BackupCatalog(filename string) error {
	if s.isClosed() {
		return lib.ErrStoreClosed
	}
	return s.catalog.Backup(filename)
}

// Status returns the counts of a folder. When the folder is not loaded and its summary file
// is still valid, the counts come from the summary header only.
func (s *Store) Status(name string) (mailbox.Status, error) {
	f, err := s.Folder(name)
	if err != nil {
		return mailbox.Status{}, err
	}
	status, err := s.cachedStatus(f)
	if err != nil {
		return mailbox.Status{}, err
	}
	if status == nil {
		loaded, err := f.Status()
		if err != nil {
			return mailbox.Status{}, err
		}
		status = &loaded
	}
	status.UidValidity, err = s.catalog.UIDValidity(name)
	if err != nil {
		return mailbox.Status{}, err
	}
	return *status, nil
}

func (s *Store) cachedStatus(f *folder.Folder) (*mailbox.Status, error) {
	if f.State() == folder.Loaded {
		return nil, nil
	}
	info, err := os.Stat(f.Path())
	if err != nil {
		return nil, err
	}
	state, err := summary.Peek(f.SummaryPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Printf("%s: ignoring summary file: %v", f.Name(), err)
		}
		return nil, nil
	}
	if !state.Matches(info.ModTime(), info.Size()) {
		return nil, nil
	}
	return &mailbox.Status{
		Name:           f.Name(),
		PermanentFlags: folder.PermanentFlags(),
		Messages:       state.Counts.Total,
		Undeleted:      state.Counts.Undeleted,
		Unseen:         state.Counts.Unread,
		DeletedBytes:   state.Counts.DeletedBytes,
		Size:           info.Size(),
		Cached:         true,
	}, nil
}

// StatusAll returns the status of every folder, in the order of List
func (s *Store) StatusAll(ctx context.Context) ([]mailbox.Status, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	statuses := make([]mailbox.Status, len(names))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelFolders)
	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			status, err := s.Status(name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			statuses[i] = status
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// Sync writes the pending changes of all the opened folders
func (s *Store) Sync(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelFolders)
	for _, f := range s.opened() {
		f := f
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return f.Sync()
		})
	}
	return group.Wait()
}

// Close stops the background flush, writes the pending changes and closes the catalog
func (s *Store) Close(ctx context.Context) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	folders := make([]*folder.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, f)
	}
	s.folders = make(map[string]*folder.Folder)
	s.mutex.Unlock()

	errs := []error{s.scheduler.Close(ctx)}
	for _, f := range folders {
		err := f.Close(false)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		}
	}
	errs = append(errs, s.catalog.Close())
	return errors.Join(errs...)
}

func (s *Store) openLocked(name string) *folder.Folder {
	f := folder.NewWithConfig(filepath.Join(s.root, name), folder.Config{
		Options:   s.options,
		Table:     s.table,
		Scheduler: s.scheduler,
		UIDs:      s.catalog,
		Observer:  s.observer,
		Logger:    s.log,
	})
	s.folders[name] = f
	return f
}

func (s *Store) opened() []*folder.Folder {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	folders := make([]*folder.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, f)
	}
	return folders
}

func (s *Store) isClosed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		folder.IsAuxiliaryFile(name) {
		return fmt.Errorf("%w: %q", lib.ErrInvalidName, name)
	}
	return nil
}
