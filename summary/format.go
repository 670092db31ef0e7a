package summary

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Format of a summary file, from the tag at the start of the header
type Format int

const (
	Unknown Format = iota
	// V1 only holds the header
	V1
	// V2 holds the header and the message records
	V2
)

// Current is the format used for writing
const Current = V2

const (
	tagSize = 4
	// HeaderSize is the fixed size of the header common to all formats
	HeaderSize = tagSize + 8 + 8 + 4 + 4 + 4 + 8
)

var tags = map[Format][tagSize]byte{
	V1: {'M', 'F', 'S', '1'},
	V2: {'M', 'F', 'S', '2'},
}

func (f Format) String() string {
	switch f {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

// Detect returns the format of a summary file from its first bytes
func Detect(header []byte) Format {
	if len(header) < tagSize {
		return Unknown
	}
	for format, tag := range tags {
		if string(header[:tagSize]) == string(tag[:]) {
			return format
		}
	}
	return Unknown
}

// decoder reads what follows the header
type decoder interface {
	decode(reader io.Reader, state State) (*Cache, error)
}

var registry = map[Format]decoder{
	V1: headerOnlyDecoder{},
	V2: recordsDecoder{},
}

func encodeHeader(state State) []byte {
	buffer := make([]byte, HeaderSize)
	tag := tags[state.Format]
	copy(buffer, tag[:])
	position := tagSize
	var modTime int64
	if !state.ModTime.IsZero() {
		modTime = state.ModTime.UnixNano()
	}
	binary.LittleEndian.PutUint64(buffer[position:], uint64(modTime))
	position += 8
	binary.LittleEndian.PutUint64(buffer[position:], uint64(state.Size))
	position += 8
	binary.LittleEndian.PutUint32(buffer[position:], state.Total)
	position += 4
	binary.LittleEndian.PutUint32(buffer[position:], state.Undeleted)
	position += 4
	binary.LittleEndian.PutUint32(buffer[position:], state.Unread)
	position += 4
	binary.LittleEndian.PutUint64(buffer[position:], state.DeletedBytes)
	return buffer
}

func decodeHeader(buffer []byte) (State, error) {
	if len(buffer) < HeaderSize {
		return State{}, fmt.Errorf("%w: header too short (%d bytes)", ErrCorrupt, len(buffer))
	}
	format := Detect(buffer)
	if format == Unknown {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFormat, buffer[:tagSize])
	}
	state := State{Format: format}
	position := tagSize
	modTime := int64(binary.LittleEndian.Uint64(buffer[position:]))
	if modTime != 0 {
		state.ModTime = time.Unix(0, modTime)
	}
	position += 8
	state.Size = int64(binary.LittleEndian.Uint64(buffer[position:]))
	position += 8
	state.Total = binary.LittleEndian.Uint32(buffer[position:])
	position += 4
	state.Undeleted = binary.LittleEndian.Uint32(buffer[position:])
	position += 4
	state.Unread = binary.LittleEndian.Uint32(buffer[position:])
	position += 4
	state.DeletedBytes = binary.LittleEndian.Uint64(buffer[position:])

	if state.Size < 0 {
		return State{}, fmt.Errorf("%w: negative file size", ErrCorrupt)
	}
	if err := state.Check(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return state, nil
}
