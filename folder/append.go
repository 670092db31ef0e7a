package folder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

const contentLengthWidth = 10

var (
	escapedEnvelope = []byte(">From ")
	errorMarker     = []byte(">ERR ")
)

// Append writes a new message at the end of the mailbox file. The raw message is an RFC822 message,
// optionally starting with an envelope line. Any status, Content-Length or X-UID header is replaced.
// The new message is returned when the folder is loaded, nil otherwise.
func (f *Folder) Append(raw io.Reader, flags Flags) (*Message, error) {
	f.mutex.Lock()
	events, msg, err := f.appendLocked(raw, flags)
	f.mutex.Unlock()
	f.dispatch(events)
	return msg, err
}

func (f *Folder) appendLocked(raw io.Reader, flags Flags) ([]event, *Message, error) {
	events, err := f.ensureFreshLocked(true)
	if err != nil {
		return events, nil, err
	}

	input := bufio.NewReader(raw)
	header, err := readHeaderBlock(input)
	if err != nil {
		return events, nil, fmt.Errorf("cannot read message: %w", err)
	}
	flags = (flags | DetectFlags(header) | parseHeaders(header).flags).Persisted()

	lock, err := f.lock()
	if err != nil {
		return events, nil, err
	}
	defer f.unlock(lock)

	var uid uint32
	if f.uids != nil {
		uid, err = f.uids.NextUID(f.name)
		if err != nil {
			return events, nil, fmt.Errorf("cannot allocate UID: %w", err)
		}
	}

	_, err = os.Stat(f.path)
	created := errors.Is(err, os.ErrNotExist)
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return events, nil, fmt.Errorf("cannot open mailbox %q: %w", f.name, err)
	}
	defer file.Close()

	start, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return events, nil, fmt.Errorf("cannot append to mailbox %q: %w", f.name, err)
	}
	envelope, err := f.writeMessage(file, start, header, input, flags, uid)
	if err != nil {
		f.discardAppend(file, start, envelope, created)
		return events, nil, fmt.Errorf("cannot append to mailbox %q: %w", f.name, err)
	}

	info, err := file.Stat()
	if err != nil {
		return events, nil, fmt.Errorf("cannot append to mailbox %q: %w", f.name, err)
	}
	if f.state != Loaded {
		return events, nil, nil
	}

	scanner := NewScanner(file, info.Size(), f.table, f.options.ContentLengthSlack, f.log)
	added, counts, err := scanner.Scan(envelope)
	f.stats.add(scanner.Stats())
	if err != nil {
		// the file is fine but we can't trust our copy of it anymore
		removed := f.unloadLocked()
		return append(events, event{kind: eventRemoved, messages: removed}), nil, fmt.Errorf("cannot read appended message: %w", err)
	}
	if len(added) != 1 {
		f.log.Printf("appended message was read as %d messages", len(added))
	}
	for _, msg := range added {
		msg.folder.Store(f)
	}
	f.messages = append(f.messages, added...)
	f.counts.Add(counts)
	f.modTime, f.size = info.ModTime(), info.Size()
	f.markSummaryDirty()
	events = append(events, event{kind: eventAdded, messages: added})
	if len(added) == 0 {
		return events, nil, nil
	}
	return events, added[0], nil
}

// writeMessage appends the message at offset start and returns the offset of its envelope line
func (f *Folder) writeMessage(file *os.File, start int64, header []byte, body *bufio.Reader, flags Flags, uid uint32) (int64, error) {
	envelope := start
	if start > 0 {
		last := make([]byte, 1)
		_, err := file.ReadAt(last, start-1)
		if err != nil {
			return envelope, err
		}
		if last[0] != '\n' {
			// previous message not terminated
			envelope++
		}
	}

	output := &countingWriter{writer: bufio.NewWriter(file), offset: start}
	if envelope > start {
		output.WriteString("\n")
	}
	output.WriteString("From - " + time.Now().UTC().Format(time.ANSIC) + "\n")
	output.WriteString(statusHeader + ": " + flags.StatusValue() + "\n")
	for _, field := range splitFields(header) {
		if field.is(statusHeader) || field.is(contentLengthHeader) || field.is(uidHeader) {
			continue
		}
		output.Write(field.raw)
		if !bytes.HasSuffix(field.raw, []byte("\n")) {
			output.WriteString("\n")
		}
	}
	if uid > 0 {
		output.WriteString(uidHeader + ": " + strconv.FormatUint(uint64(uid), 10) + "\n")
	}
	output.WriteString(contentLengthHeader + ": ")
	placeholder := output.offset
	output.WriteString(string(bytes.Repeat([]byte(" "), contentLengthWidth)) + "\n\n")
	bodyStart := output.offset
	err := copyBody(output, body)
	if err != nil {
		return envelope, err
	}
	if output.err != nil {
		return envelope, output.err
	}
	err = output.writer.Flush()
	if err != nil {
		return envelope, err
	}
	length := output.offset - bodyStart
	_, err = file.WriteAt([]byte(fmt.Sprintf("%-*d", contentLengthWidth, length)), placeholder)
	if err != nil {
		return envelope, err
	}
	return envelope, file.Sync()
}

// discardAppend removes a partially written message
func (f *Folder) discardAppend(file *os.File, start, envelope int64, created bool) {
	if created {
		_ = file.Close()
		err := os.Remove(f.path)
		if err == nil {
			return
		}
		f.log.Printf("cannot remove partial mailbox: %v", err)
		return
	}
	err := file.Truncate(start)
	if err == nil {
		return
	}
	f.log.Printf("cannot truncate mailbox after failed append: %v", err)
	// make sure the partial message can't be read as a message
	_, err = file.WriteAt(errorMarker, envelope)
	if err != nil {
		f.log.Printf("cannot mark failed append: %v", err)
	}
}

// readHeaderBlock returns the header lines of a message, up to the blank line (excluded).
// A leading envelope line is dropped.
func readHeaderBlock(input *bufio.Reader) ([]byte, error) {
	header := &bytes.Buffer{}
	first := true
	for {
		line, err := input.ReadBytes('\n')
		if len(line) > 0 {
			if first && bytes.HasPrefix(line, envelopePrefix) {
				first = false
				continue
			}
			first = false
			if isBlankLine(line) {
				return header.Bytes(), nil
			}
			header.Write(line)
		}
		if errors.Is(err, io.EOF) {
			// no body
			return header.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// copyBody copies the body, escaping the lines looking like an envelope.
// The body always ends with a line terminator.
func copyBody(output *countingWriter, input *bufio.Reader) error {
	terminated := true
	for {
		line, err := input.ReadBytes('\n')
		if len(line) > 0 {
			if bytes.HasPrefix(line, envelopePrefix) {
				output.Write(escapedEnvelope)
				line = line[len(envelopePrefix):]
			}
			output.Write(line)
			terminated = line[len(line)-1] == '\n'
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if !terminated {
		output.WriteString("\n")
	}
	return output.err
}

// countingWriter keeps the file offset and the first error
type countingWriter struct {
	writer *bufio.Writer
	offset int64
	err    error
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.writer.Write(p)
	w.offset += int64(n)
	w.err = err
	return n, err
}

func (w *countingWriter) WriteString(s string) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.writer.WriteString(s)
	w.offset += int64(n)
	w.err = err
	return n, err
}
