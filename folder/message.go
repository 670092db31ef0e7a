package folder

import (
	"sync/atomic"
	"time"

	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/summary"
)

// Message is one physical message inside the mailbox file.
//
// The layout fields can move during a compaction and the flags change through
// Folder.SetFlag: both are read atomically so a Message can be inspected
// without holding the folder lock.
type Message struct {
	offset         atomic.Int64 // start of the envelope line
	bodyOffset     atomic.Int64
	length         atomic.Int64 // envelope to end of body, trailing blank line excluded
	statusOffset   atomic.Int64 // position of the status hex digits, -1 when absent
	flags          atomic.Uint64
	envelopeLength int64
	date           int64 // milliseconds since epoch
	uid            uint32

	table      *intern.Table
	author     intern.Handle
	recipient  intern.Handle
	subject    intern.Handle
	messageID  intern.Handle
	references []intern.Handle

	folder atomic.Pointer[Folder]
}

func newMessage(table *intern.Table, offset int64) *Message {
	msg := &Message{table: table}
	msg.offset.Store(offset)
	msg.statusOffset.Store(-1)
	return msg
}

// Offset of the envelope line in the mailbox file
func (m *Message) Offset() int64 {
	return m.offset.Load()
}

// HeaderOffset is the offset of the first header line (right after the envelope line)
func (m *Message) HeaderOffset() int64 {
	return m.offset.Load() + m.envelopeLength
}

func (m *Message) BodyOffset() int64 {
	return m.bodyOffset.Load()
}

// Length in bytes from the envelope line to the end of the body
func (m *Message) Length() int64 {
	return m.length.Load()
}

// End offset (exclusive) of the message in the file
func (m *Message) End() int64 {
	return m.offset.Load() + m.length.Load()
}

// Size of the message as seen by a reader: headers and body, without the envelope line
func (m *Message) Size() int64 {
	return m.length.Load() - m.envelopeLength
}

func (m *Message) Flags() Flags {
	return Flags(m.flags.Load())
}

func (m *Message) Has(flag Flags) bool {
	return m.Flags().Has(flag)
}

func (m *Message) setFlags(flags Flags) {
	m.flags.Store(uint64(flags))
}

// HasStatusHeader is true when the status can be rewritten in place
func (m *Message) HasStatusHeader() bool {
	return m.statusOffset.Load() >= 0
}

// Date the message was sent (from the Date header)
func (m *Message) Date() time.Time {
	if m.date == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.date)
}

// UID from the X-UID header, zero when the message has none
func (m *Message) UID() uint32 {
	return m.uid
}

func (m *Message) Author() string {
	return m.table.String(m.author)
}

func (m *Message) Recipient() string {
	return m.table.String(m.recipient)
}

// Subject without its "Re:" prefixes (see FlagHasRe)
func (m *Message) Subject() string {
	return m.table.String(m.subject)
}

// MessageID is never empty: a synthetic ID is generated for messages without one
func (m *Message) MessageID() string {
	return m.table.String(m.messageID)
}

func (m *Message) MessageIDHandle() intern.Handle {
	return m.messageID
}

// References returns the message-IDs from References and In-Reply-To, in order
func (m *Message) References() []string {
	refs := make([]string, len(m.references))
	for i, handle := range m.references {
		refs[i] = m.table.String(handle)
	}
	return refs
}

// Folder returns the folder holding the message, or nil once it has been expunged
func (m *Message) Folder() *Folder {
	return m.folder.Load()
}

// moveTo copies the layout of other (same message in a rewritten file)
func (m *Message) moveTo(other *Message) {
	m.offset.Store(other.offset.Load())
	m.bodyOffset.Store(other.bodyOffset.Load())
	m.length.Store(other.length.Load())
	m.statusOffset.Store(other.statusOffset.Load())
}

func (m *Message) record() summary.Record {
	return summary.Record{
		Offset:         m.offset.Load(),
		EnvelopeLength: m.envelopeLength,
		BodyOffset:     m.bodyOffset.Load(),
		Length:         m.length.Load(),
		StatusOffset:   m.statusOffset.Load(),
		Flags:          m.flags.Load(),
		Date:           m.date,
		UID:            m.uid,
		Author:         m.Author(),
		Recipient:      m.Recipient(),
		Subject:        m.Subject(),
		MessageID:      m.MessageID(),
		References:     m.References(),
	}
}

func messageFromRecord(table *intern.Table, record summary.Record) *Message {
	msg := newMessage(table, record.Offset)
	msg.envelopeLength = record.EnvelopeLength
	msg.bodyOffset.Store(record.BodyOffset)
	msg.length.Store(record.Length)
	msg.statusOffset.Store(record.StatusOffset)
	msg.flags.Store(record.Flags)
	msg.date = record.Date
	msg.uid = record.UID
	msg.author = table.InternString(record.Author)
	msg.recipient = table.InternString(record.Recipient)
	msg.subject = table.InternString(record.Subject)
	msg.messageID = table.InternString(record.MessageID)
	if len(record.References) > 0 {
		msg.references = make([]intern.Handle, len(record.References))
		for i, ref := range record.References {
			msg.references[i] = table.InternString(ref)
		}
	}
	return msg
}

// countMessages computes the folder aggregates from scratch
func countMessages(messages []*Message) summary.Counts {
	counts := summary.Counts{}
	for _, msg := range messages {
		counts.Add(contribution(msg.Flags(), msg.Length()))
	}
	return counts
}

// contribution of a single message to the folder aggregates
func contribution(flags Flags, length int64) summary.Counts {
	counts := summary.Counts{Total: 1}
	if flags&FlagDeleted != 0 {
		counts.DeletedBytes = uint64(length)
		return counts
	}
	counts.Undeleted = 1
	if flags&FlagRead == 0 {
		counts.Unread = 1
	}
	return counts
}
