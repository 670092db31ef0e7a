package folder

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
)

const (
	statusHeader        = "X-Mozilla-Status"
	contentLengthHeader = "Content-Length"
	uidHeader           = "X-UID"
	statusWidth         = 4
	syntheticIDDomain   = "mailfolder.invalid"
)

// namespace of the synthetic message-IDs, so the same headers always give the same ID
var syntheticNamespace = uuid.MustParse("6f1c3d0e-2b7a-4c55-9d7e-5b3f0a8e4c21")

// rawField is one header field exactly as it appears in the file,
// continuation lines included.
type rawField struct {
	name string // empty for a line that is not a header field
	raw  []byte
	// offset of the value (first non blank byte after the colon) inside the header block
	valueOffset int
}

func (f rawField) value() []byte {
	colon := bytes.IndexByte(f.raw, ':')
	if colon < 0 {
		return nil
	}
	value := f.raw[colon+1:]
	// unfold
	value = bytes.ReplaceAll(value, []byte("\r\n"), nil)
	value = bytes.ReplaceAll(value, []byte("\n"), nil)
	return bytes.TrimSpace(value)
}

func (f rawField) is(name string) bool {
	return strings.EqualFold(f.name, name)
}

// splitFields cuts a header block into fields, keeping every byte
func splitFields(header []byte) []rawField {
	fields := make([]rawField, 0, 16)
	position := 0
	for position < len(header) {
		end := bytes.IndexByte(header[position:], '\n')
		if end < 0 {
			end = len(header)
		} else {
			end += position + 1
		}
		line := header[position:end]
		if (line[0] == ' ' || line[0] == '\t') && len(fields) > 0 && fields[len(fields)-1].name != "" {
			last := &fields[len(fields)-1]
			last.raw = header[position-len(last.raw) : end]
			position = end
			continue
		}
		field := rawField{raw: line, valueOffset: -1}
		if colon := bytes.IndexByte(line, ':'); colon > 0 {
			name := bytes.TrimRight(line[:colon], " \t")
			if len(name) > 0 && bytes.IndexAny(name, " \t") < 0 {
				field.name = string(name)
				value := colon + 1
				for value < len(line) && (line[value] == ' ' || line[value] == '\t') {
					value++
				}
				field.valueOffset = position + value
			}
		}
		fields = append(fields, field)
		position = end
	}
	return fields
}

// headerInfo is what the folder needs to know from a message header block
type headerInfo struct {
	author        string
	recipient     string
	subject       string
	messageID     string
	references    []string
	date          int64
	contentLength int64 // -1 when absent or invalid
	uid           uint32
	flags         Flags
	hasStatus     bool
	statusOffset  int // inside the header block, -1 when the status can't be rewritten in place
}

// parseHeaders reads the header block of a message (without the blank line ending it)
func parseHeaders(raw []byte) headerInfo {
	info := headerInfo{
		contentLength: -1,
		statusOffset:  -1,
	}
	fields := splitFields(raw)

	header := textproto.Header{}
	for _, field := range fields {
		if field.name == "" {
			continue
		}
		value := field.value()
		switch {
		case field.is(statusHeader):
			if info.hasStatus {
				// only the first status header counts
				break
			}
			if bits, ok := ParseStatusValue(value); ok {
				info.hasStatus = true
				info.flags |= FlagsFromStatus(bits)
				if field.valueOffset >= 0 && field.valueOffset+statusWidth <= len(raw) {
					if _, ok := ParseStatusValue(raw[field.valueOffset:]); ok {
						info.statusOffset = field.valueOffset
					}
				}
			}
		case field.is(contentLengthHeader):
			length, err := strconv.ParseInt(string(value), 10, 64)
			if err == nil && length > 0 {
				info.contentLength = length
			}
		case field.is(uidHeader):
			uid, err := strconv.ParseUint(string(value), 10, 32)
			if err == nil {
				info.uid = uint32(uid)
			}
		}
		header.Add(field.name, string(value))
	}
	mailHeader := mail.Header{}
	mailHeader.Header.Header = header

	info.author = firstAddress(mailHeader, "From", "Sender")
	info.recipient = firstAddress(mailHeader, "To", "Cc", "Newsgroups")

	subject, err := mailHeader.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	subject, hasRe := stripRe(subject)
	info.subject = subject
	if hasRe {
		info.flags |= FlagHasRe
	}

	if date, err := mailHeader.Date(); err == nil && !date.IsZero() {
		info.date = date.UnixMilli()
	}

	messageID, err := mailHeader.MessageID()
	if err != nil || messageID == "" {
		messageID = strings.Trim(strings.TrimSpace(header.Get("Message-Id")), "<>")
	}
	if messageID == "" {
		messageID = syntheticMessageID(raw)
	}
	info.messageID = messageID

	info.references = referenceList(mailHeader)
	info.flags |= securityFlags(mailHeader)
	return info
}

func firstAddress(header mail.Header, keys ...string) string {
	for _, key := range keys {
		if !header.Has(key) {
			continue
		}
		addresses, err := header.AddressList(key)
		if err == nil && len(addresses) > 0 {
			if addresses[0].Name != "" {
				return addresses[0].Name
			}
			return addresses[0].Address
		}
		// not parseable as an address: keep the raw text
		if value := strings.TrimSpace(header.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func referenceList(header mail.Header) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, key := range []string{"References", "In-Reply-To"} {
		ids, err := header.MsgIDList(key)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}

func securityFlags(header mail.Header) Flags {
	contentType, params, err := header.ContentType()
	if err != nil {
		return 0
	}
	switch contentType {
	case "multipart/signed", "application/pkcs7-signature":
		return FlagSigned
	case "multipart/encrypted":
		return FlagEncrypted
	case "application/pkcs7-mime", "application/x-pkcs7-mime":
		if strings.EqualFold(params["smime-type"], "signed-data") {
			return FlagSigned
		}
		return FlagEncrypted
	}
	return 0
}

// stripRe removes any number of leading "Re:" from the subject
func stripRe(subject string) (string, bool) {
	hasRe := false
	subject = strings.TrimSpace(subject)
	for len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		hasRe = true
		subject = strings.TrimSpace(subject[3:])
	}
	return subject, hasRe
}

func syntheticMessageID(raw []byte) string {
	return uuid.NewMD5(syntheticNamespace, raw).String() + "@" + syntheticIDDomain
}

// DetectFlags returns the flags persisted in a raw header block:
// X-Mozilla-Status first, then the classic "Status: RO" and "X-Status: AFD" headers.
func DetectFlags(header []byte) Flags {
	var flags Flags
	hasMozilla := false
	for _, field := range splitFields(header) {
		value := field.value()
		switch {
		case field.is(statusHeader):
			if bits, ok := ParseStatusValue(value); ok {
				hasMozilla = true
				flags |= FlagsFromStatus(bits)
			}
		case field.is("Status") && !hasMozilla:
			if bytes.IndexByte(value, 'R') >= 0 {
				flags |= FlagRead
			}
		case field.is("X-Status") && !hasMozilla:
			if bytes.IndexByte(value, 'A') >= 0 {
				flags |= FlagReplied
			}
			if bytes.IndexByte(value, 'F') >= 0 {
				flags |= FlagMarked
			}
			if bytes.IndexByte(value, 'D') >= 0 {
				flags |= FlagDeleted
			}
		}
	}
	return flags.Persisted()
}

// HeaderMessageID returns the message-ID of a raw message, or a synthetic one made from its headers
func HeaderMessageID(raw []byte) (string, error) {
	header, err := readHeaderBlock(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", err
	}
	return parseHeaders(header).messageID, nil
}
