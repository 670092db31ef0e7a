package summary

import "errors"

var (
	ErrUnknownFormat = errors.New("unknown summary format")
	ErrCorrupt       = errors.New("corrupt summary file")
	// ErrNoRecords is returned when loading a summary format without message records
	ErrNoRecords = errors.New("summary file has no message records")
)
