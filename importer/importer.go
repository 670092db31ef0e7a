package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/limitio"
	"github.com/creativeprojects/mailfolder/mailbox"
)

// Progresser is notified after each message
type Progresser interface {
	Increment()
}

type Result struct {
	Imported int
	Skipped  int
}

// Importer appends messages from another mail store into a folder.
// Messages already in the history are skipped.
type Importer struct {
	target    *folder.Folder
	history   *mailbox.History
	rateLimit int
	progress  Progresser
	log       lib.Logger
}

// New creates an importer into target. A nil history imports everything.
func New(target *folder.Folder, history *mailbox.History, logger lib.Logger) *Importer {
	if history == nil {
		history = &mailbox.History{}
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Importer{
		target:  target,
		history: history,
		log:     logger,
	}
}

// SetRateLimit throttles the reading of the source (bytes/sec)
func (i *Importer) SetRateLimit(bytesPerSec int) {
	i.rateLimit = bytesPerSec
}

func (i *Importer) SetProgress(progress Progresser) {
	i.progress = progress
}

func (i *Importer) History() *mailbox.History {
	return i.history
}

func (i *Importer) reader(ctx context.Context, source io.Reader) io.Reader {
	reader := limitio.NewReaderContext(ctx, source)
	if i.rateLimit > 0 {
		reader.SetRateLimit(float64(i.rateLimit), min(i.rateLimit, 64*1024))
	}
	return reader
}

// session is one import run, recorded as one history action
type session struct {
	*Importer
	action mailbox.HistoryAction
	result Result
}

func (i *Importer) start(sourceTag, action string) *session {
	return &session{
		Importer: i,
		action: mailbox.HistoryAction{
			SourceTag: sourceTag,
			Date:      time.Now(),
			Action:    action,
		},
	}
}

// add appends one message, unless it was imported before
func (s *session) add(sourceID string, raw []byte, flags folder.Flags) error {
	if s.progress != nil {
		defer s.progress.Increment()
	}
	if entry := s.history.Find(s.action.SourceTag, sourceID); entry != nil {
		s.result.Skipped++
		return nil
	}
	msg, err := s.target.Append(bytes.NewReader(raw), flags)
	if err != nil {
		return fmt.Errorf("cannot import message %q: %w", sourceID, err)
	}
	var messageID string
	if msg != nil {
		messageID = msg.MessageID()
	} else {
		messageID, _ = folder.HeaderMessageID(raw)
	}
	s.action.Entries = append(s.action.Entries, mailbox.HistoryEntry{
		SourceID:  sourceID,
		MessageID: messageID,
	})
	s.result.Imported++
	return nil
}

// finish records the imported messages, even after an error
func (s *session) finish() Result {
	s.history.Add(s.action)
	s.log.Printf("imported %d messages into %q, %d skipped", s.result.Imported, s.target.Name(), s.result.Skipped)
	return s.result
}
