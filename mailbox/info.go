package mailbox

import "time"

type Info struct {
	// The mailbox name.
	Name string
	// Together with a UID, it is a unique identifier for a message.
	UidValidity uint32
	// When the mailbox was first seen.
	Created time.Time
}
