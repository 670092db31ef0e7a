package mailbox

type Status struct {
	// The mailbox name.
	Name string

	// The mailbox permanent flags.
	PermanentFlags []string

	// The number of messages in this mailbox, deleted ones included.
	Messages uint32
	// The number of messages not flagged as deleted.
	Undeleted uint32
	// The number of unread messages (deleted ones excluded).
	Unseen uint32
	// Bytes used by deleted messages, reclaimed on expunge.
	DeletedBytes uint64
	// Size of the mailbox file.
	Size int64
	// Together with a UID, it is a unique identifier for a message.
	// Zero when the mailbox has no UID catalog.
	UidValidity uint32
	// True when the counts come from the summary file without loading the mailbox.
	Cached bool
}
