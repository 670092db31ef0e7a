package folder

import "fmt"

// InvariantError is a programming error detected on the folder state.
// The operation is aborted before changing anything.
type InvariantError struct {
	Folder string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on mailbox %q: %s", e.Folder, e.Reason)
}

func (f *Folder) invariant(format string, a ...any) error {
	return &InvariantError{
		Folder: f.name,
		Reason: fmt.Sprintf(format, a...),
	}
}
