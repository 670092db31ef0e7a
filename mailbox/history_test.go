package mailbox

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTag(t *testing.T) {
	tag := SourceTag("mbox", "/home/user/mail/Inbox")
	assert.Len(t, tag, 64)
	assert.Equal(t, tag, SourceTag("mbox", "/home/user/mail/Inbox"))
	assert.NotEqual(t, tag, SourceTag("maildir", "/home/user/mail/Inbox"))
}

func TestGetEmptyHistory(t *testing.T) {
	history, err := LoadHistory("/file_really_should_not_exist_here")
	assert.NoError(t, err)
	assert.Empty(t, history.Actions)
	assert.True(t, history.LastAction().IsZero())
}

func TestSaveAndLoadHistory(t *testing.T) {
	date := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	history := &History{}
	history.Add(HistoryAction{
		SourceTag: "source",
		Date:      date,
		Action:    ActionImportMbox,
		Entries: []HistoryEntry{
			{"<1@example.com>", "<1@example.com>"},
			{"<3@example.com>", "<4@example.com>"},
		},
	})
	history.Add(HistoryAction{
		SourceTag: "source",
		Date:      date.Add(-time.Hour),
		Action:    ActionImportMbox,
		Entries:   []HistoryEntry{{"<5@example.com>", "<5@example.com>"}},
	})
	filename := filepath.Join(t.TempDir(), "history.json")
	err := history.Save(filename)
	require.NoError(t, err)

	loaded, err := LoadHistory(filename)
	require.NoError(t, err)
	require.Len(t, loaded.Actions, 2)
	// sorted by date
	assert.Equal(t, history.Actions[1].Entries, loaded.Actions[0].Entries)
	assert.Equal(t, history.Actions[0].Entries, loaded.Actions[1].Entries)
	assert.True(t, date.Equal(loaded.LastAction()))
}

func TestEmptyActionIsDropped(t *testing.T) {
	history := &History{}
	history.Add(HistoryAction{SourceTag: "source", Action: ActionImportMaildir})
	assert.Empty(t, history.Actions)
}

func TestFindHistoryFromSourceID(t *testing.T) {
	history := &History{
		Actions: []HistoryAction{
			{
				SourceTag: "source",
				Action:    ActionImportMaildir,
				Entries: []HistoryEntry{
					{"1", "<2@example.com>"},
					{"3", "<4@example.com>"},
				},
			},
		},
	}

	testCases := []struct {
		sourceTag string
		sourceID  string
		found     bool
	}{
		{"source", "1", true},
		{"source", "3", true},
		{"other", "1", false},
		{"source", "2", false},
		{"source", "5", false},
	}

	for _, testCase := range testCases {
		found := history.Find(testCase.sourceTag, testCase.sourceID)
		if testCase.found {
			assert.NotNil(t, found)
		} else {
			assert.Nil(t, found)
		}
	}

	// entries added after the first lookup are found too
	history.Add(HistoryAction{
		SourceTag: "source",
		Action:    ActionImportMaildir,
		Entries:   []HistoryEntry{{"5", "<6@example.com>"}},
	})
	entry := history.Find("source", "5")
	require.NotNil(t, entry)
	assert.Equal(t, "<6@example.com>", entry.MessageID)
}

func TestFindInNilHistory(t *testing.T) {
	var history *History
	assert.Nil(t, history.Find("source", "1"))
}
