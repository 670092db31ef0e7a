package mailbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"
)

// History keeps track of the messages already imported into a folder
type History struct {
	Actions []HistoryAction
	index   map[string]map[string]*HistoryEntry
}

type HistoryAction struct {
	SourceTag string
	Date      time.Time
	Action    string
	Entries   []HistoryEntry
}

type HistoryEntry struct {
	// SourceID identifies the message in the source (maildir key, or message-ID for an mbox file)
	SourceID string
	// MessageID of the message appended to the folder
	MessageID string
}

const (
	ActionImportMbox    = "IMPORT_MBOX"
	ActionImportMaildir = "IMPORT_MAILDIR"
)

// SourceTag identifies the source of an import
func SourceTag(kind, location string) string {
	hasher := sha256.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte(":"))
	hasher.Write([]byte(location))
	hasher.Write([]byte("\n"))
	return hex.EncodeToString(hasher.Sum(nil))
}

// LoadHistory reads the history file. A missing file gives an empty history.
func LoadHistory(filename string) (*History, error) {
	history := &History{}
	file, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return history, nil
		}
		return nil, fmt.Errorf("cannot open history file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(history)
	if err != nil {
		return nil, fmt.Errorf("error reading history file: %w", err)
	}

	sort.SliceStable(history.Actions, func(i, j int) bool {
		return history.Actions[i].Date.Before(history.Actions[j].Date)
	})
	return history, nil
}

func (h *History) Save(filename string) error {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("cannot save history: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	err = encoder.Encode(h)
	if err != nil {
		return fmt.Errorf("cannot encode history: %w", err)
	}
	return file.Close()
}

// Add records an action. Actions without entries are dropped.
func (h *History) Add(action HistoryAction) {
	if len(action.Entries) == 0 {
		return
	}
	h.Actions = append(h.Actions, action)
	if h.index != nil {
		h.indexAction(len(h.Actions) - 1)
	}
}

// Find returns the entry of a message already imported from the source
func (h *History) Find(sourceTag, sourceID string) *HistoryEntry {
	if h == nil {
		return nil
	}
	if h.index == nil {
		h.index = make(map[string]map[string]*HistoryEntry)
		for i := range h.Actions {
			h.indexAction(i)
		}
	}
	return h.index[sourceTag][sourceID]
}

func (h *History) indexAction(i int) {
	action := &h.Actions[i]
	entries, found := h.index[action.SourceTag]
	if !found {
		entries = make(map[string]*HistoryEntry)
		h.index[action.SourceTag] = entries
	}
	for j := range action.Entries {
		entry := &action.Entries[j]
		if _, found := entries[entry.SourceID]; !found {
			entries[entry.SourceID] = entry
		}
	}
}

// LastAction returns the date of the most recent action
func (h *History) LastAction() time.Time {
	last := time.Time{}
	if h == nil {
		return last
	}
	for _, action := range h.Actions {
		if action.Date.After(last) {
			last = action.Date
		}
	}
	return last
}
