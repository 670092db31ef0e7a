package folder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/emersion/go-imap"
)

// Flags is the in-memory flag set of a message.
type Flags uint64

const (
	FlagRead Flags = 1 << iota
	FlagReplied
	FlagForwarded
	FlagMarked
	FlagDeleted
	FlagHasRe
	FlagSigned
	FlagEncrypted
	FlagPartial
	FlagQueued
	// FlagDirty is set when the persisted flags differ from the status header in the file
	FlagDirty
)

// ForwardedFlag is the IMAP keyword used for forwarded messages
const ForwardedFlag = "$Forwarded"

// bits of the X-Mozilla-Status header
var statusBits = []struct {
	flag Flags
	bit  uint16
}{
	{FlagRead, 0x0001},
	{FlagReplied, 0x0002},
	{FlagMarked, 0x0004},
	{FlagDeleted, 0x0008},
	{FlagHasRe, 0x0010},
	{FlagPartial, 0x0400},
	{FlagQueued, 0x0800},
	{FlagForwarded, 0x1000},
}

// persistedFlags is the subset of flags written in the status header
const persistedFlags = FlagRead | FlagReplied | FlagMarked | FlagDeleted | FlagHasRe | FlagPartial | FlagQueued | FlagForwarded

// PermanentFlags are the IMAP flags a client can change for good
func PermanentFlags() []string {
	return (persistedFlags &^ FlagHasRe &^ FlagPartial &^ FlagQueued).IMAPFlags()
}

var flagNames = map[Flags]string{
	FlagRead:      "read",
	FlagReplied:   "replied",
	FlagForwarded: "forwarded",
	FlagMarked:    "marked",
	FlagDeleted:   "deleted",
	FlagHasRe:     "re",
	FlagSigned:    "signed",
	FlagEncrypted: "encrypted",
	FlagPartial:   "partial",
	FlagQueued:    "queued",
	FlagDirty:     "dirty",
}

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Persisted returns the flags stored in the status header
func (f Flags) Persisted() Flags {
	return f & persistedFlags
}

// StatusBits converts the flags into the X-Mozilla-Status numeric space
func (f Flags) StatusBits() uint16 {
	var bits uint16
	for _, entry := range statusBits {
		if f&entry.flag != 0 {
			bits |= entry.bit
		}
	}
	return bits
}

// StatusValue returns the value of the status header (4 lowercase hex digits)
func (f Flags) StatusValue() string {
	return fmt.Sprintf("%04x", f.StatusBits())
}

// FlagsFromStatus converts X-Mozilla-Status bits. Unknown bits are ignored.
func FlagsFromStatus(bits uint16) Flags {
	var flags Flags
	for _, entry := range statusBits {
		if bits&entry.bit != 0 {
			flags |= entry.flag
		}
	}
	return flags
}

// ParseStatusValue reads exactly 4 hex digits
func ParseStatusValue(value []byte) (uint16, bool) {
	if len(value) < statusWidth {
		return 0, false
	}
	if len(value) > statusWidth && isHexDigit(value[statusWidth]) {
		return 0, false
	}
	bits, err := strconv.ParseUint(string(value[:statusWidth]), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(bits), true
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// IMAPFlags returns the IMAP system flags matching this set
func (f Flags) IMAPFlags() []string {
	flags := make([]string, 0, 4)
	if f&FlagRead != 0 {
		flags = append(flags, imap.SeenFlag)
	}
	if f&FlagReplied != 0 {
		flags = append(flags, imap.AnsweredFlag)
	}
	if f&FlagMarked != 0 {
		flags = append(flags, imap.FlaggedFlag)
	}
	if f&FlagDeleted != 0 {
		flags = append(flags, imap.DeletedFlag)
	}
	if f&FlagForwarded != 0 {
		flags = append(flags, ForwardedFlag)
	}
	return flags
}

// ParseIMAPFlags is the reverse of IMAPFlags. Unknown flags are ignored.
func ParseIMAPFlags(source []string) Flags {
	var flags Flags
	for _, flag := range source {
		switch imap.CanonicalFlag(flag) {
		case imap.SeenFlag:
			flags |= FlagRead
		case imap.AnsweredFlag:
			flags |= FlagReplied
		case imap.FlaggedFlag:
			flags |= FlagMarked
		case imap.DeletedFlag:
			flags |= FlagDeleted
		case strings.ToLower(ForwardedFlag):
			flags |= FlagForwarded
		}
	}
	return flags
}

// ParseFlag returns the flag from its name ("read", "deleted", etc.)
func ParseFlag(name string) (Flags, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for flag, flagName := range flagNames {
		if flagName == name {
			return flag, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", lib.ErrInvalidFlag, name)
}

func (f Flags) String() string {
	names := make([]string, 0, len(flagNames))
	for flag, name := range flagNames {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
