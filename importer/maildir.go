package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/emersion/go-maildir"
)

// FromMaildir imports the messages of a maildir. New messages are moved to "cur" first.
// Messages are identified in the history by their maildir key.
func (i *Importer) FromMaildir(ctx context.Context, path string) (Result, error) {
	s := i.start(mailbox.SourceTag("maildir", path), mailbox.ActionImportMaildir)
	defer s.finish()

	dir := maildir.Dir(path)
	_, err := dir.Unseen()
	if err != nil {
		return s.result, fmt.Errorf("cannot read maildir %q: %w", path, err)
	}
	messages, err := dir.Messages()
	if err != nil {
		return s.result, fmt.Errorf("cannot read maildir %q: %w", path, err)
	}
	i.log.Printf("%d messages in maildir %q", len(messages), path)
	for _, message := range messages {
		if err := ctx.Err(); err != nil {
			return s.result, err
		}
		raw, err := i.readMaildirMessage(ctx, message)
		if err != nil {
			return s.result, err
		}
		err = s.add(message.Key(), raw, fromMaildirFlags(message.Flags()))
		if err != nil {
			return s.result, err
		}
	}
	return s.result, nil
}

func (i *Importer) readMaildirMessage(ctx context.Context, message *maildir.Message) ([]byte, error) {
	file, err := message.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open message %q: %w", message.Key(), err)
	}
	defer file.Close()
	return io.ReadAll(i.reader(ctx, file))
}

// ToMaildir writes the messages not flagged as deleted into a maildir, created if needed
func ToMaildir(ctx context.Context, source *folder.Folder, path string) (int, error) {
	dir := maildir.Dir(path)
	err := dir.Init()
	if err != nil {
		return 0, fmt.Errorf("cannot create maildir %q: %w", path, err)
	}
	messages, err := source.Messages()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if msg.Has(folder.FlagDeleted) {
			continue
		}
		err = exportMaildirMessage(dir, source, msg)
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func exportMaildirMessage(dir maildir.Dir, source *folder.Folder, msg *folder.Message) error {
	content, err := source.Open(msg)
	if err != nil {
		return err
	}
	defer content.Close()

	_, writer, err := dir.Create(toMaildirFlags(msg.Flags()))
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, content)
	if err != nil {
		writer.Close()
		return fmt.Errorf("cannot export message %q: %w", msg.MessageID(), err)
	}
	return writer.Close()
}

func fromMaildirFlags(source []maildir.Flag) folder.Flags {
	var flags folder.Flags
	for _, flag := range source {
		switch flag {
		case maildir.FlagSeen:
			flags |= folder.FlagRead

		case maildir.FlagReplied:
			flags |= folder.FlagReplied

		case maildir.FlagFlagged:
			flags |= folder.FlagMarked

		case maildir.FlagTrashed:
			flags |= folder.FlagDeleted

		case maildir.FlagPassed:
			flags |= folder.FlagForwarded
		}
	}
	return flags
}

func toMaildirFlags(source folder.Flags) []maildir.Flag {
	flags := make([]maildir.Flag, 0, 5)
	if source.Has(folder.FlagForwarded) {
		flags = append(flags, maildir.FlagPassed)
	}
	if source.Has(folder.FlagReplied) {
		flags = append(flags, maildir.FlagReplied)
	}
	if source.Has(folder.FlagRead) {
		flags = append(flags, maildir.FlagSeen)
	}
	if source.Has(folder.FlagDeleted) {
		flags = append(flags, maildir.FlagTrashed)
	}
	if source.Has(folder.FlagMarked) {
		flags = append(flags, maildir.FlagFlagged)
	}
	return flags
}
