package folder

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/creativeprojects/mailfolder/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storedBody is the body as written by Append: envelope lines escaped and a final line terminator
func storedBody(email []byte) []byte {
	_, body, found := bytes.Cut(email, []byte("\n\n"))
	if !found {
		return nil
	}
	stored := &bytes.Buffer{}
	for _, line := range bytes.SplitAfter(body, []byte("\n")) {
		if bytes.HasPrefix(line, envelopePrefix) {
			stored.WriteByte('>')
		}
		stored.Write(line)
	}
	if stored.Len() > 0 && !bytes.HasSuffix(stored.Bytes(), []byte("\n")) {
		stored.WriteByte('\n')
	}
	return stored.Bytes()
}

func readBodies(t *testing.T, folder *Folder) map[string][]byte {
	t.Helper()
	bodies := make(map[string][]byte)
	for _, msg := range mustMessages(t, folder) {
		reader, err := folder.Open(msg)
		require.NoError(t, err)
		raw, err := io.ReadAll(reader)
		require.NoError(t, err)
		require.NoError(t, reader.Close())
		bodies[msg.MessageID()] = raw[msg.BodyOffset()-msg.HeaderOffset():]
	}
	return bodies
}

func checkLayout(t *testing.T, folder *Folder, size int64) {
	t.Helper()
	messages := mustMessages(t, folder)
	for i := 1; i < len(messages); i++ {
		assert.Equal(t, messages[i-1].End(), messages[i].Offset())
	}
	if len(messages) > 0 {
		assert.Equal(t, int64(0), messages[0].Offset())
		assert.Equal(t, size, messages[len(messages)-1].End())
	}
	checkCounts(t, folder)
}

func TestGeneratedMessagesRoundTrip(t *testing.T) {
	const count = 40
	generator := lib.NewEmailGenerator(20221001)
	random := rand.New(rand.NewSource(1))
	path := writeMailbox(t, "")
	folder := newTestFolder(t, path, Config{UIDs: &sequenceUIDs{}})
	require.NoError(t, folder.Load())

	expected := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%d", i)
		email := generator.GenerateEmail("user1@example.com", "user2@example.com", id, 3000)
		expected[id+"@localhost"] = storedBody(email)
		_, err := folder.Append(bytes.NewReader(email), Flags(random.Intn(int(FlagForwarded<<1))))
		require.NoError(t, err)
	}

	reopened := newTestFolder(t, path, Config{})
	require.Len(t, mustMessages(t, reopened), count)
	checkLayout(t, reopened, int64(len(readFile(t, path))))
	assert.Equal(t, expected, readBodies(t, reopened))
	assert.Zero(t, reopened.Stats().SlackHits)
	assert.Zero(t, reopened.Stats().SlackMisses)

	// delete a random half
	for _, msg := range mustMessages(t, reopened) {
		if random.Intn(2) == 0 {
			require.NoError(t, reopened.SetFlag(msg, FlagDeleted, true))
			delete(expected, msg.MessageID())
		}
	}
	_, err := reopened.Expunge()
	require.NoError(t, err)
	checkLayout(t, reopened, int64(len(readFile(t, path))))
	assert.Equal(t, expected, readBodies(t, reopened))

	rescanned := newTestFolder(t, path, Config{})
	require.Len(t, mustMessages(t, rescanned), len(expected))
	assert.Equal(t, expected, readBodies(t, rescanned))
	checkLayout(t, rescanned, int64(len(readFile(t, path))))
}
