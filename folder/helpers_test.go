package folder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/stretchr/testify/require"
)

const testEnvelope = "From sender@example.com Sat Oct  1 12:00:00 2022\n"

type testMessage struct {
	id      string
	subject string
	status  string // X-Mozilla-Status value, no header when empty
	extra   []string
	body    string
}

func (m testMessage) headers() string {
	builder := &strings.Builder{}
	builder.WriteString(testEnvelope)
	builder.WriteString("From: Sender <sender@example.com>\n")
	builder.WriteString("To: Recipient <recipient@example.com>\n")
	builder.WriteString("Date: Sat, 01 Oct 2022 12:00:00 +0000\n")
	if m.id != "" {
		builder.WriteString("Message-ID: <" + m.id + ">\n")
	}
	subject := m.subject
	if subject == "" {
		subject = "message " + m.id
	}
	builder.WriteString("Subject: " + subject + "\n")
	if m.status != "" {
		builder.WriteString(statusHeader + ": " + m.status + "\n")
	}
	for _, line := range m.extra {
		builder.WriteString(line + "\n")
	}
	builder.WriteString("\n")
	return builder.String()
}

func (m testMessage) String() string {
	body := m.body
	if body == "" {
		body = "body of " + m.id + "\n"
	}
	return m.headers() + body
}

func mailboxContent(messages ...testMessage) string {
	builder := &strings.Builder{}
	for _, msg := range messages {
		builder.WriteString(msg.String())
	}
	return builder.String()
}

func writeMailbox(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Inbox")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func newTestFolder(t *testing.T, path string, config Config) *Folder {
	t.Helper()
	if config.Logger == nil {
		config.Logger = lib.NewTestLogger(t, "")
	}
	return NewWithConfig(path, config)
}

func messageIDs(messages []*Message) []string {
	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.MessageID()
	}
	return ids
}

type recordingObserver struct {
	mutex   sync.Mutex
	added   [][]*Message
	removed [][]*Message
	changes []string
}

func (o *recordingObserver) MessagesAdded(folder *Folder, messages []*Message) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.added = append(o.added, messages)
}

func (o *recordingObserver) MessagesRemoved(folder *Folder, messages []*Message) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.removed = append(o.removed, messages)
}

func (o *recordingObserver) MessageChanged(folder *Folder, message *Message, old, new Flags) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.changes = append(o.changes, fmt.Sprintf("%s: %s -> %s", message.MessageID(), old, new))
}

type sequenceUIDs struct {
	next uint32
}

func (s *sequenceUIDs) NextUID(folder string) (uint32, error) {
	s.next++
	return s.next, nil
}
