package folder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryPath(t *testing.T) {
	dir := filepath.Join("mail", "local")
	assert.Equal(t, filepath.Join(dir, ".Inbox.summary"), summaryPath(filepath.Join(dir, "Inbox"), true))
	assert.Equal(t, filepath.Join(dir, "Inbox.snm"), summaryPath(filepath.Join(dir, "Inbox"), false))
	assert.Equal(t, filepath.Join(dir, "Sent.snm"), summaryPath(filepath.Join(dir, "Sent.mbox"), false))
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, filepath.Join("mail", ".Inbox.ns_tmp"), tempPathFor(filepath.Join("mail", "Inbox"), true))
	assert.Equal(t, filepath.Join("mail", "Inbox.tmp"), tempPathFor(filepath.Join("mail", "Inbox.mbox"), false))
}

func TestIsAuxiliaryFile(t *testing.T) {
	for name, expected := range map[string]bool{
		"Inbox":            false,
		"Sent.mbox":        false,
		".Inbox.summary":   true,
		".Inbox.ns_tmp":    true,
		"Inbox.lock":       true,
		"Inbox.snm":        true,
		"Inbox.tmp":        true,
		".mailfolder.db":   true,
		"Inbox.lock.1.tmp": true,
	} {
		assert.Equal(t, expected, IsAuxiliaryFile(name), name)
	}
}
