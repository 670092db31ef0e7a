package folder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/limitio"
)

const compactBurst = 64 * 1024

// Expunge rewrites the mailbox file without the messages flagged as deleted, and returns them.
// The mailbox file and the folder are left untouched on error.
func (f *Folder) Expunge() ([]*Message, error) {
	f.mutex.Lock()
	events, removed, err := f.compactLocked(false)
	f.mutex.Unlock()
	f.dispatch(events)
	return removed, err
}

// Compact is like Expunge but always rewrites the mailbox file, even with no deleted message.
// All the messages get a status header and an accurate Content-Length.
func (f *Folder) Compact() ([]*Message, error) {
	f.mutex.Lock()
	events, removed, err := f.compactLocked(true)
	f.mutex.Unlock()
	f.dispatch(events)
	return removed, err
}

func (f *Folder) compactLocked(force bool) ([]event, []*Message, error) {
	err := f.loadLocked()
	if err != nil {
		return nil, nil, err
	}
	events, err := f.ensureFreshLocked(true)
	if err != nil {
		return events, nil, err
	}
	if f.counts.Deleted() == 0 && (!force || len(f.messages) == 0) {
		return events, nil, nil
	}
	if f.flagsDirty {
		f.flagsDirty = false
		err = f.writeStatusLocked()
		if err != nil {
			f.flagsDirty = true
			return events, nil, err
		}
	}

	lock, err := f.lock()
	if err != nil {
		return events, nil, err
	}
	defer f.unlock(lock)

	snapshot := f.snapshot()
	rebuilt, info, err := f.rewrite(snapshot)
	if err != nil {
		return events, nil, fmt.Errorf("cannot expunge mailbox %q: %w", f.name, err)
	}

	messages, removed, added := reconcile(snapshot, rebuilt)
	for _, msg := range removed {
		msg.folder.Store(nil)
	}
	for _, msg := range added {
		msg.folder.Store(f)
	}
	f.messages = messages
	f.counts = countMessages(messages)
	f.modTime, f.size = info.ModTime(), info.Size()
	f.flagsDirty = false

	// the summary is saved now: compaction already did most of the work
	f.summaryDirty = false
	err = f.writeSummaryLocked()
	if err != nil {
		f.log.Printf("cannot save summary after compaction: %v", err)
		f.markSummaryDirty()
	}
	f.log.Printf("expunged %d messages, %d left (%d bytes)", len(removed), len(messages), f.size)

	events = append(events, event{kind: eventRemoved, messages: removed}, event{kind: eventAdded, messages: added})
	return events, removed, nil
}

// rewrite copies the undeleted messages into a temporary file then replaces the mailbox file with it.
// It returns the messages read back from the new file.
func (f *Folder) rewrite(snapshot []*Message) ([]*Message, os.FileInfo, error) {
	source, err := os.Open(f.path)
	if err != nil {
		return nil, nil, err
	}
	defer source.Close()

	tempFile := tempPath(f.path)
	temp, err := os.OpenFile(tempFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, err
	}
	success := false
	defer func() {
		if !success {
			_ = temp.Close()
			_ = os.Remove(tempFile)
		}
	}()

	var output io.Writer = temp
	if f.options.WriteRateLimit > 0 {
		limited := limitio.NewWriter(temp)
		limited.SetRateLimit(float64(f.options.WriteRateLimit), min(f.options.WriteRateLimit, compactBurst))
		output = limited
	}
	buffer := bufio.NewWriter(output)
	writer := &countingWriter{writer: buffer}
	for _, msg := range snapshot {
		if msg.Has(FlagDeleted) {
			continue
		}
		err = copyMessage(writer, source, msg)
		if err != nil {
			return nil, nil, err
		}
	}
	err = buffer.Flush()
	if err != nil {
		return nil, nil, err
	}
	err = temp.Sync()
	if err != nil {
		return nil, nil, err
	}
	info, err := temp.Stat()
	if err != nil {
		return nil, nil, err
	}

	scanner := NewScanner(temp, info.Size(), f.table, f.options.ContentLengthSlack, f.log)
	rebuilt, _, err := scanner.Scan(0)
	if err != nil {
		return nil, nil, err
	}

	err = temp.Close()
	if err != nil {
		return nil, nil, err
	}
	// the source must be closed before being replaced on some systems
	_ = source.Close()
	err = os.Rename(tempFile, f.path)
	if err != nil {
		return nil, nil, err
	}
	success = true
	info, err = os.Stat(f.path)
	if err != nil {
		return nil, nil, err
	}
	return rebuilt, info, nil
}

// copyMessage writes the envelope line, the headers with a fresh status, Content-Length and X-UID, then the body
func copyMessage(writer *countingWriter, source io.ReaderAt, msg *Message) error {
	offset := msg.Offset()
	headerOffset := msg.HeaderOffset()
	bodyOffset := msg.BodyOffset()
	end := msg.End()

	block := make([]byte, bodyOffset-offset)
	n, err := source.ReadAt(block, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(block)) {
		return fmt.Errorf("cannot read message at offset %d: %w", offset, err)
	}
	envelope := block[:headerOffset-offset]
	header := trimHeaderTerminator(block[headerOffset-offset:])

	bodyLength := end - bodyOffset
	terminate := false
	if bodyLength > 0 {
		last := make([]byte, 1)
		_, err = source.ReadAt(last, end-1)
		if err != nil {
			return fmt.Errorf("cannot read message at offset %d: %w", end-1, err)
		}
		terminate = last[0] != '\n'
	}
	contentLength := bodyLength
	if terminate {
		contentLength++
	}

	writer.Write(envelope)
	if !bytes.HasSuffix(envelope, []byte("\n")) {
		writer.WriteString("\n")
	}
	for _, field := range splitFields(header) {
		if field.is(statusHeader) || field.is(contentLengthHeader) || field.is(uidHeader) {
			continue
		}
		writer.Write(field.raw)
		if !bytes.HasSuffix(field.raw, []byte("\n")) {
			writer.WriteString("\n")
		}
	}
	writer.WriteString(statusHeader + ": " + msg.Flags().StatusValue() + "\n")
	if msg.UID() > 0 {
		writer.WriteString(uidHeader + ": " + strconv.FormatUint(uint64(msg.UID()), 10) + "\n")
	}
	writer.WriteString(contentLengthHeader + ": " + strconv.FormatInt(contentLength, 10) + "\n\n")
	if writer.err != nil {
		return writer.err
	}
	_, err = io.Copy(writer, io.NewSectionReader(source, bodyOffset, bodyLength))
	if err != nil {
		return err
	}
	if terminate {
		writer.WriteString("\n")
	}
	return writer.err
}

// trimHeaderTerminator removes the blank line ending a header block
func trimHeaderTerminator(header []byte) []byte {
	if bytes.HasSuffix(header, []byte("\n\r\n")) {
		return header[:len(header)-2]
	}
	if bytes.HasSuffix(header, []byte("\n\n")) {
		return header[:len(header)-1]
	}
	if len(header) == 1 && header[0] == '\n' || len(header) == 2 && header[0] == '\r' && header[1] == '\n' {
		return nil
	}
	return header
}

// reconcile matches the messages read from the rewritten file with the undeleted ones, by message-ID in file order.
// Matched messages keep their identity with the new layout.
func reconcile(snapshot, rebuilt []*Message) (messages, removed, added []*Message) {
	old := make([]*Message, 0, len(snapshot))
	remaining := make(map[intern.Handle]int, len(snapshot))
	for _, msg := range snapshot {
		if msg.Has(FlagDeleted) {
			removed = append(removed, msg)
			continue
		}
		old = append(old, msg)
		remaining[msg.MessageIDHandle()]++
	}
	matched := make([]bool, len(old))
	messages = make([]*Message, 0, len(rebuilt))
	next := 0
	for _, msg := range rebuilt {
		id := msg.MessageIDHandle()
		if remaining[id] > 0 {
			for next < len(old) && old[next].MessageIDHandle() != id {
				next++
			}
		}
		if remaining[id] == 0 || next == len(old) {
			added = append(added, msg)
			messages = append(messages, msg)
			continue
		}
		previous := old[next]
		previous.moveTo(msg)
		previous.setFlags(previous.Flags() &^ FlagDirty)
		matched[next] = true
		remaining[id]--
		next++
		messages = append(messages, previous)
	}
	for i, msg := range old {
		if !matched[i] {
			removed = append(removed, msg)
		}
	}
	return messages, removed, added
}
