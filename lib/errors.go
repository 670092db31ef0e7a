package lib

import "errors"

var (
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMailboxExists   = errors.New("mailbox already exists")
	ErrInvalidName     = errors.New("invalid mailbox name")
	ErrMailboxLocked   = errors.New("mailbox locked by another process")
	ErrFolderModified  = errors.New("mailbox file modified externally")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidFlag     = errors.New("invalid message flag")
	ErrStoreClosed     = errors.New("store closed")
	ErrNotLoaded       = errors.New("mailbox not loaded")
)
