package folder

import (
	"testing"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusValue(t *testing.T) {
	testData := []struct {
		flags  Flags
		status string
	}{
		{0, "0000"},
		{FlagRead, "0001"},
		{FlagRead | FlagReplied | FlagMarked | FlagDeleted, "000f"},
		{FlagHasRe, "0010"},
		{FlagForwarded | FlagQueued | FlagPartial, "1c00"},
		{FlagSigned | FlagEncrypted | FlagDirty, "0000"},
	}
	for _, testItem := range testData {
		t.Run(testItem.status, func(t *testing.T) {
			assert.Equal(t, testItem.status, testItem.flags.StatusValue())
			bits, ok := ParseStatusValue([]byte(testItem.status))
			require.True(t, ok)
			assert.Equal(t, testItem.flags.Persisted(), FlagsFromStatus(bits))
		})
	}
}

func TestParseStatusValue(t *testing.T) {
	testData := []struct {
		input string
		valid bool
		bits  uint16
	}{
		{"0001", true, 1},
		{"8001", true, 0x8001},
		{"00A0", true, 0xa0},
		{"0001\n", true, 1},
		{"001", false, 0},
		{"00010", false, 0},
		{"zzzz", false, 0},
		{"", false, 0},
	}
	for _, testItem := range testData {
		t.Run(testItem.input, func(t *testing.T) {
			bits, ok := ParseStatusValue([]byte(testItem.input))
			assert.Equal(t, testItem.valid, ok)
			assert.Equal(t, testItem.bits, bits)
		})
	}
}

func TestIMAPFlags(t *testing.T) {
	flags := FlagRead | FlagDeleted | FlagForwarded | FlagSigned
	assert.ElementsMatch(t, []string{imap.SeenFlag, imap.DeletedFlag, ForwardedFlag}, flags.IMAPFlags())
	assert.Equal(t, FlagRead|FlagDeleted|FlagForwarded, ParseIMAPFlags(flags.IMAPFlags()))
	assert.Equal(t, FlagReplied|FlagMarked, ParseIMAPFlags([]string{`\ANSWERED`, `\flagged`, "$junk"}))
}

func TestParseFlag(t *testing.T) {
	flag, err := ParseFlag(" Deleted ")
	require.NoError(t, err)
	assert.Equal(t, FlagDeleted, flag)

	_, err = ParseFlag("unknown")
	assert.ErrorIs(t, err, lib.ErrInvalidFlag)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "", Flags(0).String())
	assert.Equal(t, "deleted,read,signed", (FlagSigned | FlagRead | FlagDeleted).String())
}
