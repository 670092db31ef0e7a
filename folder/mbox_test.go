package folder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMboxFixture generates a mailbox with the go-mbox writer
func writeMboxFixture(t *testing.T, count int) string {
	t.Helper()
	buffer := &bytes.Buffer{}
	writer := mbox.NewWriter(buffer)
	date := time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		message, err := writer.CreateMessage("sender@example.com", date.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		_, err = fmt.Fprintf(message, "Message-ID: <%d@fixture.example.com>\nSubject: fixture %d\n\nBody of fixture %d\n", i, i, i)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	path := filepath.Join(t.TempDir(), "Fixture")
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o600))
	return path
}

func TestLoadMboxFixture(t *testing.T) {
	path := writeMboxFixture(t, 20)
	folder := newTestFolder(t, path, Config{})
	messages := mustMessages(t, folder)
	require.Len(t, messages, 20)
	for i, msg := range messages {
		assert.Equal(t, fmt.Sprintf("%d@fixture.example.com", i), msg.MessageID())
		assert.Equal(t, fmt.Sprintf("fixture %d", i), msg.Subject())
		if i > 0 {
			assert.LessOrEqual(t, messages[i-1].End(), msg.Offset())
		}
	}

	// the go-mbox reader agrees with the message boundaries
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	reader := mbox.NewReader(file)
	for i := 0; ; i++ {
		message, err := reader.NextMessage()
		if err == io.EOF {
			assert.Equal(t, 20, i)
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(message)
		require.NoError(t, err)
		assert.Contains(t, string(content), fmt.Sprintf("Message-ID: <%d@fixture.example.com>", i))
	}
}

func TestExpungeMboxFixture(t *testing.T) {
	path := writeMboxFixture(t, 10)
	folder := newTestFolder(t, path, Config{})
	messages := mustMessages(t, folder)
	for i := 0; i < len(messages); i += 3 {
		require.NoError(t, folder.SetFlag(messages[i], FlagDeleted, true))
	}
	removed, err := folder.Expunge()
	require.NoError(t, err)
	assert.Len(t, removed, 4)

	reopened := newTestFolder(t, path, Config{})
	remaining := mustMessages(t, reopened)
	assert.Equal(t, []string{
		"1@fixture.example.com", "2@fixture.example.com",
		"4@fixture.example.com", "5@fixture.example.com",
		"7@fixture.example.com", "8@fixture.example.com",
	}, messageIDs(remaining))
}
