package folder

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan(t *testing.T, content string) ([]*Message, *Scanner) {
	t.Helper()
	scanner := NewScanner(strings.NewReader(content), int64(len(content)), intern.NewTable(), 0, lib.NewTestLogger(t, "scan"))
	messages, counts, err := scanner.Scan(0)
	require.NoError(t, err)
	assert.Equal(t, countMessages(messages), counts)
	return messages, scanner
}

func TestScanContiguousMessages(t *testing.T) {
	content := mailboxContent(
		testMessage{id: "1@example.com"},
		testMessage{id: "2@example.com", body: "two lines\nof body\n"},
		testMessage{id: "3@example.com"},
	)
	messages, scanner := scan(t, content)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"1@example.com", "2@example.com", "3@example.com"}, messageIDs(messages))

	assert.Equal(t, int64(0), messages[0].Offset())
	for i := 1; i < len(messages); i++ {
		assert.Equal(t, messages[i-1].End(), messages[i].Offset())
	}
	assert.Equal(t, int64(len(content)), messages[2].End())
	assert.Equal(t, 3, scanner.Stats().Messages)

	for _, msg := range messages {
		assert.Equal(t, int64(len(testEnvelope)), msg.HeaderOffset()-msg.Offset())
		assert.True(t, strings.HasPrefix(content[msg.BodyOffset():], "body of") || strings.HasPrefix(content[msg.BodyOffset():], "two lines"))
	}
}

func TestScanHeaderFields(t *testing.T) {
	content := mailboxContent(testMessage{
		id:      "1@example.com",
		subject: "Re: RE: hello",
		status:  "0005",
		extra: []string{
			"References: <a@example.com> <b@example.com>",
			"In-Reply-To: <b@example.com>",
			"X-UID: 42",
		},
	})
	messages, _ := scan(t, content)
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "Sender", msg.Author())
	assert.Equal(t, "Recipient", msg.Recipient())
	assert.Equal(t, "hello", msg.Subject())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.References())
	assert.Equal(t, uint32(42), msg.UID())
	assert.Equal(t, int64(1664625600000), msg.Date().UnixMilli())
	assert.Equal(t, FlagRead|FlagMarked|FlagHasRe, msg.Flags())
	require.True(t, msg.HasStatusHeader())
	assert.Equal(t, "0005", content[msg.statusOffset.Load():msg.statusOffset.Load()+statusWidth])
}

func TestScanExcludesBlankLineBeforeEnvelope(t *testing.T) {
	first := testMessage{id: "1@example.com", body: "hello\n\n"}
	second := testMessage{id: "2@example.com"}
	content := mailboxContent(first, second)
	messages, _ := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, messages[1].Offset()-1, messages[0].End())
	assert.Equal(t, "\n", content[messages[0].End():messages[1].Offset()])
	assert.Equal(t, int64(len(content)), messages[1].End())
}

func TestScanMessageWithoutBody(t *testing.T) {
	content := testEnvelope + "Subject: no body\n" + mailboxContent(testMessage{id: "2@example.com"})
	messages, _ := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, messages[0].End(), messages[0].BodyOffset())
	assert.Equal(t, messages[1].Offset(), messages[0].End())
	assert.Equal(t, "no body", messages[0].Subject())
	assert.True(t, strings.HasSuffix(messages[0].MessageID(), "@"+syntheticIDDomain))
}

func TestScanNoEnvelope(t *testing.T) {
	messages, _ := scan(t, "just some text\nwithout any envelope line\n")
	assert.Empty(t, messages)

	messages, _ = scan(t, "")
	assert.Empty(t, messages)
}

func TestScanFromOffset(t *testing.T) {
	first := testMessage{id: "1@example.com"}.String()
	content := first + testMessage{id: "2@example.com"}.String()
	scanner := NewScanner(strings.NewReader(content), int64(len(content)), nil, 0, nil)
	messages, _, err := scanner.Scan(int64(len(first)))
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(len(first)), messages[0].Offset())

	_, _, err = scanner.Scan(int64(len(content) + 1))
	assert.Error(t, err)
}

// contentLengthMessage has a body with an unescaped envelope line that only Content-Length can skip
func contentLengthMessage(id string, body string, delta int) string {
	return testEnvelope +
		"Message-ID: <" + id + ">\n" +
		fmt.Sprintf("Content-Length: %d\n", len(body)+delta) +
		"\n" + body
}

func TestScanContentLengthFastPath(t *testing.T) {
	body := "first line\nFrom somebody in the body\nlast line\n"
	content := contentLengthMessage("1@example.com", body, 0) + testMessage{id: "2@example.com"}.String()
	messages, scanner := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, []string{"1@example.com", "2@example.com"}, messageIDs(messages))
	assert.Equal(t, messages[1].Offset(), messages[0].End())
	assert.Equal(t, 1, scanner.Stats().FastPath)
	assert.Equal(t, 0, scanner.Stats().SlackHits)
	assert.Equal(t, 0, scanner.Stats().SlackMisses)
}

func TestScanContentLengthKeepsTrailingBlankLine(t *testing.T) {
	body := "line\n\n"
	content := contentLengthMessage("1@example.com", body, 0) + testMessage{id: "2@example.com"}.String()
	messages, scanner := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, messages[1].Offset(), messages[0].End())
	assert.Equal(t, body, content[messages[0].BodyOffset():messages[0].End()])
	assert.Equal(t, 1, scanner.Stats().FastPath)
}

func TestScanContentLengthExcludingPadding(t *testing.T) {
	// the blank line between the messages isn't counted in Content-Length
	body := "line\n"
	content := contentLengthMessage("1@example.com", body, 0) + "\n" + testMessage{id: "2@example.com"}.String()
	messages, scanner := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, body, content[messages[0].BodyOffset():messages[0].End()])
	assert.Equal(t, messages[1].Offset()-1, messages[0].End())
	assert.Equal(t, 1, scanner.Stats().SlackHits)
}

func TestScanContentLengthUpToEndOfFile(t *testing.T) {
	body := "From the start\nto the end\n"
	content := contentLengthMessage("1@example.com", body, 0)
	messages, scanner := scan(t, content)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(len(content)), messages[0].End())
	assert.Equal(t, 1, scanner.Stats().FastPath)
}

func TestScanContentLengthWithinSlack(t *testing.T) {
	// the envelope line in the body is too far from the target to be picked
	body := "From the body\n" + strings.Repeat("x", 200) + "\nend\n"
	for _, delta := range []int{-100, -30, -1, 1, 30, 100} {
		t.Run(fmt.Sprintf("%+d", delta), func(t *testing.T) {
			second := testMessage{id: "2@example.com", body: strings.Repeat("y", 300) + "\n"}.String()
			content := contentLengthMessage("1@example.com", body, delta) + second
			messages, scanner := scan(t, content)
			require.Len(t, messages, 2)
			assert.Equal(t, []string{"1@example.com", "2@example.com"}, messageIDs(messages))
			assert.Equal(t, messages[1].Offset(), messages[0].End())
			assert.Equal(t, int64(len(content)-len(second)), messages[0].End())
			assert.Equal(t, 0, scanner.Stats().FastPath)
			assert.Equal(t, 1, scanner.Stats().SlackHits)
		})
	}
}

func TestScanContentLengthTieFavoursEarlierBoundary(t *testing.T) {
	before := "aaaa\naaaa\n"
	inner := "From inner\n"
	after := "cccc\ncccc\ncccc\n"
	body := before + inner + after
	// target right between the inner envelope line and the next message
	declared := (len(before) + len(body)) / 2
	require.Equal(t, len(body)-declared, declared-len(before))

	content := contentLengthMessage("1@example.com", body, declared-len(body)) + testMessage{id: "2@example.com"}.String()
	messages, scanner := scan(t, content)
	require.Len(t, messages, 3)
	bodyOffset := messages[0].BodyOffset()
	assert.Equal(t, bodyOffset+int64(len(before)), messages[0].End())
	assert.Equal(t, messages[0].End(), messages[1].Offset())
	assert.Equal(t, 1, scanner.Stats().SlackHits)
}

func TestScanContentLengthBeyondSlack(t *testing.T) {
	body := strings.Repeat("z", 300) + "\n"
	for _, delta := range []int{-150, 150, 10000} {
		t.Run(fmt.Sprintf("%+d", delta), func(t *testing.T) {
			// end of file out of reach too
			second := testMessage{id: "2@example.com", body: strings.Repeat("y", 400) + "\n"}.String()
			content := contentLengthMessage("1@example.com", body, delta) + second
			messages, scanner := scan(t, content)
			require.Len(t, messages, 2)
			assert.Equal(t, messages[1].Offset(), messages[0].End())
			assert.Equal(t, 1, scanner.Stats().SlackMisses)
			assert.Equal(t, 0, scanner.Stats().SlackHits)
		})
	}
}

func TestScanIgnoresInvalidContentLength(t *testing.T) {
	for _, value := range []string{"0", "-12", "abc", ""} {
		t.Run(value, func(t *testing.T) {
			content := testEnvelope + "Message-ID: <1@example.com>\nContent-Length: " + value + "\n\nbody\n" + testMessage{id: "2@example.com"}.String()
			messages, scanner := scan(t, content)
			require.Len(t, messages, 2)
			stats := scanner.Stats()
			assert.Equal(t, 0, stats.FastPath+stats.SlackHits+stats.SlackMisses)
		})
	}
}

func TestScanLongLines(t *testing.T) {
	long := strings.Repeat("w", 3*scannerBufferSize) + "\n"
	content := mailboxContent(
		testMessage{id: "1@example.com", body: long},
		testMessage{id: "2@example.com", extra: []string{"X-Long: " + strings.Repeat("h", scannerBufferSize+10)}},
	)
	messages, _ := scan(t, content)
	require.Len(t, messages, 2)
	assert.Equal(t, messages[1].Offset(), messages[0].End())
	assert.Equal(t, "2@example.com", messages[1].MessageID())
}

func TestScanLastLineWithoutTerminator(t *testing.T) {
	content := mailboxContent(testMessage{id: "1@example.com", body: "no terminator"})
	messages, _ := scan(t, content)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(len(content)), messages[0].End())
}

type failingReader struct {
	content []byte
	failAt  int64
}

func (r *failingReader) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > r.failAt {
		return 0, fmt.Errorf("disk on fire")
	}
	return bytes.NewReader(r.content).ReadAt(p, off)
}

func TestScanReadError(t *testing.T) {
	content := mailboxContent(testMessage{id: "1@example.com"}, testMessage{id: "2@example.com"})
	reader := &failingReader{content: []byte(content), failAt: int64(len(content) / 2)}
	scanner := NewScanner(reader, int64(len(content)), nil, 0, nil)
	messages, _, err := scanner.Scan(0)
	assert.Error(t, err)
	assert.Nil(t, messages)
}
