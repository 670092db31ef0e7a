package folder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/summary"
)

const (
	// DefaultContentLengthSlack is the window searched around a declared Content-Length
	DefaultContentLengthSlack = 100
	scannerBufferSize         = 64 * 1024
)

var envelopePrefix = []byte("From ")

// ScanStats counts how message boundaries were found
type ScanStats struct {
	// number of scan passes
	Passes   int
	Messages int
	// boundaries confirmed at exactly the declared Content-Length
	FastPath int
	// boundaries found inside the slack window
	SlackHits int
	// Content-Length headers that didn't match any boundary
	SlackMisses int
	// bytes read line by line
	BytesScanned int64
}

// Scanner cuts a mailbox file into messages.
type Scanner struct {
	source io.ReaderAt
	size   int64
	slack  int64
	table  *intern.Table
	log    lib.Logger
	stats  ScanStats
}

// NewScanner prepares a scan of the first size bytes of source.
// A slack of zero or less uses DefaultContentLengthSlack.
func NewScanner(source io.ReaderAt, size int64, table *intern.Table, slack int64, logger lib.Logger) *Scanner {
	if slack <= 0 {
		slack = DefaultContentLengthSlack
	}
	if table == nil {
		table = intern.NewTable()
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Scanner{
		source: source,
		size:   size,
		slack:  slack,
		table:  table,
		log:    logger,
	}
}

func (s *ScanStats) add(other ScanStats) {
	s.Passes += other.Passes
	s.Messages += other.Messages
	s.FastPath += other.FastPath
	s.SlackHits += other.SlackHits
	s.SlackMisses += other.SlackMisses
	s.BytesScanned += other.BytesScanned
}

func (s *Scanner) Stats() ScanStats {
	return s.stats
}

// Scan returns the messages found from start up to the end of the file, with their aggregate counts.
// Any read error aborts the scan: a partial result is never returned.
func (s *Scanner) Scan(start int64) ([]*Message, summary.Counts, error) {
	if start < 0 || start > s.size {
		return nil, summary.Counts{}, fmt.Errorf("scan offset %d outside of file (%d bytes)", start, s.size)
	}
	lines := newLineReader(s.source, s.size)
	lines.reset(start)

	messages := make([]*Message, 0)
	var (
		current      *Message
		header       []byte
		headerOffset int64
		inHeader     bool
		prevBlank    bool
		prevOffset   int64
	)

	finish := func(end int64) {
		current.length.Store(end - current.Offset())
		messages = append(messages, current)
		current = nil
	}

	for {
		line, offset, err := lines.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, summary.Counts{}, fmt.Errorf("cannot read mailbox at offset %d: %w", offset, err)
		}

		if bytes.HasPrefix(line, envelopePrefix) {
			if current != nil {
				end := offset
				if inHeader {
					// header block interrupted by the next envelope: no body
					current.bodyOffset.Store(offset)
					s.applyHeaders(current, header, headerOffset)
				} else if prevBlank && prevOffset >= current.BodyOffset() {
					// absorb the blank line padding before the envelope
					end = prevOffset
				}
				finish(end)
			}
			current = newMessage(s.table, offset)
			current.envelopeLength = int64(len(line))
			headerOffset = offset + int64(len(line))
			header = header[:0]
			inHeader = true
			prevBlank = false
			continue
		}

		blank := isBlankLine(line)
		if current != nil && inHeader {
			if !blank {
				header = append(header, line...)
				continue
			}
			inHeader = false
			current.bodyOffset.Store(offset + int64(len(line)))
			info := s.applyHeaders(current, header, headerOffset)
			if info.contentLength > 0 {
				boundary, found, err := s.verifyBoundary(current.BodyOffset(), info.contentLength)
				if err != nil {
					return nil, summary.Counts{}, err
				}
				if found {
					if boundary == current.BodyOffset()+info.contentLength {
						// a trailing blank line counted in Content-Length belongs to the body
						prevBlank = false
					} else {
						prevBlank, prevOffset, err = s.blankBefore(boundary, current.BodyOffset())
						if err != nil {
							return nil, summary.Counts{}, err
						}
					}
					// skip the body
					lines.reset(boundary)
					continue
				}
			}
		}
		prevBlank = blank
		prevOffset = offset
	}

	if current != nil {
		if inHeader {
			current.bodyOffset.Store(s.size)
			s.applyHeaders(current, header, headerOffset)
		}
		finish(s.size)
	}
	s.stats.Passes++
	s.stats.Messages += len(messages)
	s.stats.BytesScanned += lines.scanned
	return messages, countMessages(messages), nil
}

func (s *Scanner) applyHeaders(msg *Message, header []byte, headerOffset int64) headerInfo {
	info := parseHeaders(header)
	msg.flags.Store(uint64(info.flags))
	if info.statusOffset >= 0 {
		msg.statusOffset.Store(headerOffset + int64(info.statusOffset))
	}
	msg.date = info.date
	msg.uid = info.uid
	msg.author = s.table.InternString(info.author)
	msg.recipient = s.table.InternString(info.recipient)
	msg.subject = s.table.InternString(info.subject)
	msg.messageID = s.table.InternString(info.messageID)
	if len(info.references) > 0 {
		msg.references = make([]intern.Handle, len(info.references))
		for i, ref := range info.references {
			msg.references[i] = s.table.InternString(ref)
		}
	}
	return info
}

// verifyBoundary checks the end of a body declared by its Content-Length.
// It returns the offset of the next envelope line (or the end of the file).
func (s *Scanner) verifyBoundary(bodyOffset, contentLength int64) (int64, bool, error) {
	target := bodyOffset + contentLength
	if target == s.size {
		s.stats.FastPath++
		return target, true, nil
	}
	if target < s.size {
		found, err := s.envelopeAt(target)
		if err != nil {
			return 0, false, err
		}
		if found {
			s.stats.FastPath++
			return target, true, nil
		}
	}

	low := target - s.slack
	if low < bodyOffset {
		low = bodyOffset
	}
	high := target + s.slack
	if high > s.size {
		high = s.size
	}
	if low > high {
		s.stats.SlackMisses++
		s.log.Printf("Content-Length %d at offset %d points past the end of the file", contentLength, bodyOffset)
		return 0, false, nil
	}

	// one byte before the window to check for a line start, the envelope prefix after it
	windowStart := low - 1
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := high + int64(len(envelopePrefix))
	if windowEnd > s.size {
		windowEnd = s.size
	}
	window := make([]byte, windowEnd-windowStart)
	n, err := s.source.ReadAt(window, windowStart)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, false, fmt.Errorf("cannot read mailbox at offset %d: %w", windowStart, err)
	}
	window = window[:n]

	backward, forward := int64(-1), int64(-1)
	for position := low; position <= high; position++ {
		if !s.boundaryInWindow(window, windowStart, position) {
			continue
		}
		if position <= target {
			backward = position
			continue
		}
		forward = position
		break
	}

	var boundary int64
	switch {
	case backward < 0 && forward < 0:
		s.stats.SlackMisses++
		s.log.Printf("Content-Length %d at offset %d doesn't match any message boundary", contentLength, bodyOffset)
		return 0, false, nil
	case backward < 0:
		boundary = forward
	case forward < 0:
		boundary = backward
	case forward-target < target-backward:
		boundary = forward
	default:
		// equal distance goes to the earlier boundary
		boundary = backward
	}
	s.stats.SlackHits++
	return boundary, true, nil
}

func (s *Scanner) boundaryInWindow(window []byte, windowStart, position int64) bool {
	if position == s.size {
		return true
	}
	index := position - windowStart
	if index < 0 || index+int64(len(envelopePrefix)) > int64(len(window)) {
		return false
	}
	if position > 0 && (index == 0 || window[index-1] != '\n') {
		return false
	}
	return bytes.HasPrefix(window[index:], envelopePrefix)
}

// envelopeAt checks for an envelope line starting exactly at offset
func (s *Scanner) envelopeAt(offset int64) (bool, error) {
	return envelopeAt(s.source, s.size, offset)
}

func envelopeAt(source io.ReaderAt, size, offset int64) (bool, error) {
	start := offset - 1
	if start < 0 {
		start = 0
	}
	length := offset - start + int64(len(envelopePrefix))
	if start+length > size {
		return false, nil
	}
	buffer := make([]byte, length)
	n, err := source.ReadAt(buffer, start)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return false, fmt.Errorf("cannot read mailbox at offset %d: %w", start, err)
	}
	if offset > 0 && buffer[0] != '\n' {
		return false, nil
	}
	return bytes.HasPrefix(buffer[offset-start:], envelopePrefix), nil
}

// blankBefore tells if the line right before boundary is a blank line starting at or after min
func (s *Scanner) blankBefore(boundary, min int64) (bool, int64, error) {
	start := boundary - 3
	if start < 0 {
		start = 0
	}
	if boundary-start < 2 {
		return false, 0, nil
	}
	buffer := make([]byte, boundary-start)
	n, err := s.source.ReadAt(buffer, start)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buffer)) {
		return false, 0, fmt.Errorf("cannot read mailbox at offset %d: %w", start, err)
	}
	last := len(buffer) - 1
	if buffer[last] != '\n' {
		return false, 0, nil
	}
	blank := int64(-1)
	if buffer[last-1] == '\n' {
		blank = boundary - 1
	} else if last >= 2 && buffer[last-1] == '\r' && buffer[last-2] == '\n' {
		blank = boundary - 2
	}
	if blank < 0 || blank < min {
		return false, 0, nil
	}
	return true, blank, nil
}

func isBlankLine(line []byte) bool {
	return len(line) == 0 || (len(line) == 1 && line[0] == '\n') || (len(line) == 2 && line[0] == '\r' && line[1] == '\n')
}

// lineReader reads lines and keeps track of their offset in the file
type lineReader struct {
	source  io.ReaderAt
	size    int64
	reader  *bufio.Reader
	offset  int64
	buffer  []byte
	scanned int64
}

func newLineReader(source io.ReaderAt, size int64) *lineReader {
	return &lineReader{
		source: source,
		size:   size,
		reader: bufio.NewReaderSize(nil, scannerBufferSize),
	}
}

// reset moves the reader to offset
func (r *lineReader) reset(offset int64) {
	r.reader.Reset(io.NewSectionReader(r.source, offset, r.size-offset))
	r.offset = offset
}

// next returns the next line with its terminator, and its offset.
// The line is only valid until the next call.
func (r *lineReader) next() ([]byte, int64, error) {
	start := r.offset
	chunk, err := r.reader.ReadSlice('\n')
	if err == nil {
		r.offset += int64(len(chunk))
		r.scanned += int64(len(chunk))
		return chunk, start, nil
	}
	r.buffer = append(r.buffer[:0], chunk...)
	for errors.Is(err, bufio.ErrBufferFull) {
		chunk, err = r.reader.ReadSlice('\n')
		r.buffer = append(r.buffer, chunk...)
	}
	r.offset += int64(len(r.buffer))
	r.scanned += int64(len(r.buffer))
	if errors.Is(err, io.EOF) && len(r.buffer) > 0 {
		// last line without terminator
		return r.buffer, start, nil
	}
	return r.buffer, start, err
}
