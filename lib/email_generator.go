package lib

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const charset = "abcdefghijklmnopqrstuvwxyz " +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 " +
	",./;'\\ \" []{}<>?:|!@£$%^&*()_+-= "

const template = "From: %s\n" +
	"To: %s\n" +
	"Subject: A little message, just for you\n" +
	"Date: %s\n" +
	"Message-ID: <%s@localhost>\n" +
	"Content-Type: text/plain\n" +
	"\n"

// lines that look like a message boundary to a mailbox reader
var trickyLines = []string{
	"",
	"From somebody in the body",
	"From ",
	">From an already quoted line",
	"Content-Length: 12",
	" ",
}

// EmailGenerator makes random messages. The same seed gives the same messages.
type EmailGenerator struct {
	random *rand.Rand
}

func NewEmailGenerator(seed int64) *EmailGenerator {
	return &EmailGenerator{
		random: rand.New(rand.NewSource(seed)),
	}
}

func (g *EmailGenerator) stringWithCharset(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[g.random.Intn(len(charset))]
	}
	return string(b)
}

// GenerateDateFrom returns a date between from and now
func (g *EmailGenerator) GenerateDateFrom(from time.Time) time.Time {
	span := time.Since(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(g.random.Int63n(int64(span))))
}

// GenerateBody returns a body of about size bytes, with CRLF line terminators when crlf is set.
// Bodies can end with blank lines or without a line terminator.
func (g *EmailGenerator) GenerateBody(size int, crlf bool) string {
	eol := "\n"
	if crlf {
		eol = "\r\n"
	}
	body := &strings.Builder{}
	for body.Len() < size {
		if g.random.Intn(5) == 0 {
			body.WriteString(trickyLines[g.random.Intn(len(trickyLines))])
		} else {
			body.WriteString(g.stringWithCharset(g.random.Intn(100)))
		}
		body.WriteString(eol)
	}
	switch g.random.Intn(4) {
	case 0:
		body.WriteString(eol)
	case 1:
		body.WriteString(eol + eol)
	case 2:
		body.WriteString(g.stringWithCharset(1 + g.random.Intn(20)))
	}
	return body.String()
}

// GenerateEmail returns a message with a body of up to maxBodySize bytes
func (g *EmailGenerator) GenerateEmail(from, to, id string, maxBodySize int) []byte {
	date := g.GenerateDateFrom(time.Date(2010, 1, 1, 12, 0, 0, 0, time.UTC))
	header := fmt.Sprintf(template, from, to, date.Format(time.RFC1123Z), id)
	return []byte(header + g.GenerateBody(g.random.Intn(maxBodySize+1), g.random.Intn(2) == 0))
}
