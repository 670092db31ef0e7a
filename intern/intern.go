// Package intern keeps a single copy of byte strings shared by many messages
// (authors, subjects, message-IDs) and hands out small integer handles for them.
package intern

import "sync"

// Handle identifies an interned value. The zero Handle is the empty string.
type Handle uint32

// Empty is the handle of the empty value.
const Empty Handle = 0

// Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	handles map[string]Handle
	values  []string
}

func NewTable() *Table {
	return &Table{
		handles: map[string]Handle{"": Empty},
		values:  []string{""},
	}
}

// Intern returns the handle of value, adding it to the table if needed.
// Two equal byte sequences always get the same handle.
func (t *Table) Intern(value []byte) Handle {
	if len(value) == 0 {
		return Empty
	}
	t.mu.RLock()
	// the compiler does not allocate for a map lookup with string(bytes)
	handle, ok := t.handles[string(value)]
	t.mu.RUnlock()
	if ok {
		return handle
	}
	return t.add(string(value))
}

// InternString is Intern for a string value.
func (t *Table) InternString(value string) Handle {
	if value == "" {
		return Empty
	}
	t.mu.RLock()
	handle, ok := t.handles[value]
	t.mu.RUnlock()
	if ok {
		return handle
	}
	return t.add(value)
}

func (t *Table) add(value string) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	// somebody may have added it between the two locks
	if handle, ok := t.handles[value]; ok {
		return handle
	}
	handle := Handle(len(t.values))
	t.values = append(t.values, value)
	t.handles[value] = handle
	return handle
}

// String returns the value behind handle, or an empty string for an unknown handle.
func (t *Table) String(handle Handle) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(handle) >= len(t.values) {
		return ""
	}
	return t.values[handle]
}

// Bytes returns a copy of the value behind handle.
func (t *Table) Bytes(handle Handle) []byte {
	return []byte(t.String(handle))
}

// Len returns the number of distinct values, the empty value included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.values)
}
