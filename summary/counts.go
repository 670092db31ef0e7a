package summary

import (
	"fmt"
	"time"
)

// Counts are the aggregates of a folder
type Counts struct {
	Total        uint32
	Undeleted    uint32
	Unread       uint32
	DeletedBytes uint64
}

// Add another set of counts
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Undeleted += other.Undeleted
	c.Unread += other.Unread
	c.DeletedBytes += other.DeletedBytes
}

// Sub removes another set of counts, refusing to go below zero
func (c *Counts) Sub(other Counts) error {
	if other.Total > c.Total || other.Undeleted > c.Undeleted || other.Unread > c.Unread || other.DeletedBytes > c.DeletedBytes {
		return fmt.Errorf("cannot remove %+v from %+v", other, *c)
	}
	c.Total -= other.Total
	c.Undeleted -= other.Undeleted
	c.Unread -= other.Unread
	c.DeletedBytes -= other.DeletedBytes
	return nil
}

// Check verifies unread <= undeleted <= total
func (c Counts) Check() error {
	if c.Undeleted > c.Total {
		return fmt.Errorf("%d undeleted messages out of %d", c.Undeleted, c.Total)
	}
	if c.Unread > c.Undeleted {
		return fmt.Errorf("%d unread messages out of %d undeleted", c.Unread, c.Undeleted)
	}
	return nil
}

// Deleted is the number of messages flagged for deletion
func (c Counts) Deleted() uint32 {
	return c.Total - c.Undeleted
}

// State is the header of a summary file: the counts and the mailbox file they were computed from
type State struct {
	Format  Format
	ModTime time.Time
	Size    int64
	Counts
}

// NewState returns an empty state in the current format
func NewState() State {
	return State{Format: Current}
}

// Matches is true when the state was computed from a file with this modification time and size
func (s State) Matches(modTime time.Time, size int64) bool {
	return s.Size == size && s.ModTime.Equal(modTime)
}

// Record is the layout and metadata of one message
type Record struct {
	Offset         int64
	EnvelopeLength int64
	BodyOffset     int64
	Length         int64
	StatusOffset   int64
	Flags          uint64
	Date           int64
	UID            uint32
	Author         string
	Recipient      string
	Subject        string
	MessageID      string
	References     []string
}

// Cache is a fully loaded summary file
type Cache struct {
	State
	Records []Record
}
