package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/emersion/go-mbox"
)

// FromMbox imports every message of an mbox stream. The flags come from the status headers of the messages.
// Messages are identified in the history by their message-ID.
func (i *Importer) FromMbox(ctx context.Context, source io.Reader, location string) (Result, error) {
	s := i.start(mailbox.SourceTag("mbox", location), mailbox.ActionImportMbox)
	defer s.finish()

	reader := mbox.NewReader(i.reader(ctx, source))
	for {
		if err := ctx.Err(); err != nil {
			return s.result, err
		}
		message, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.result, fmt.Errorf("cannot read mbox: %w", err)
		}
		raw, err := io.ReadAll(message)
		if err != nil {
			return s.result, fmt.Errorf("cannot read mbox: %w", err)
		}
		sourceID, err := folder.HeaderMessageID(raw)
		if err != nil {
			return s.result, err
		}
		err = s.add(sourceID, raw, 0)
		if err != nil {
			return s.result, err
		}
	}
	return s.result, nil
}

// ToMbox writes the messages not flagged as deleted into an mbox stream
func ToMbox(ctx context.Context, source *folder.Folder, output io.Writer) (int, error) {
	messages, err := source.Messages()
	if err != nil {
		return 0, err
	}
	writer := mbox.NewWriter(output)
	count := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if msg.Has(folder.FlagDeleted) {
			continue
		}
		err = exportMessage(writer, source, msg)
		if err != nil {
			return count, err
		}
		count++
	}
	return count, writer.Close()
}

func exportMessage(writer *mbox.Writer, source *folder.Folder, msg *folder.Message) error {
	date := msg.Date()
	if date.IsZero() {
		date = time.Unix(0, 0)
	}
	from := msg.Author()
	if from == "" {
		from = "MAILER-DAEMON"
	}
	content, err := source.Open(msg)
	if err != nil {
		return err
	}
	defer content.Close()

	output, err := writer.CreateMessage(from, date)
	if err != nil {
		return err
	}
	_, err = io.Copy(output, content)
	if err != nil {
		return fmt.Errorf("cannot export message %q: %w", msg.MessageID(), err)
	}
	return nil
}
