package summary

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCache() *Cache {
	return &Cache{
		State: State{
			Format:  V2,
			ModTime: time.Date(2022, 10, 1, 12, 30, 0, 1234, time.UTC),
			Size:    300,
			Counts: Counts{
				Total:        2,
				Undeleted:    1,
				Unread:       1,
				DeletedBytes: 120,
			},
		},
		Records: []Record{
			{
				Offset:         0,
				EnvelopeLength: 20,
				BodyOffset:     100,
				Length:         120,
				StatusOffset:   60,
				Flags:          8,
				Date:           1664627400000,
				Author:         "Fred",
				Subject:        "hello",
				MessageID:      "1@example.com",
			},
			{
				Offset:       120,
				BodyOffset:   200,
				Length:       180,
				StatusOffset: -1,
				UID:          12,
				MessageID:    "2@example.com",
				References:   []string{"1@example.com"},
			},
		},
	}
}

func TestDetect(t *testing.T) {
	testData := []struct {
		header []byte
		format Format
	}{
		{nil, Unknown},
		{[]byte("MF"), Unknown},
		{[]byte("MFS1"), V1},
		{[]byte("MFS2...."), V2},
		{[]byte("MFS3"), Unknown},
		{[]byte("mfs2"), Unknown},
	}
	for _, testItem := range testData {
		t.Run(string(testItem.header), func(t *testing.T) {
			assert.Equal(t, testItem.format, Detect(testItem.header))
		})
	}
}

func TestWriteAndRead(t *testing.T) {
	cache := sampleCache()
	buffer := &bytes.Buffer{}
	err := Write(buffer, cache)
	require.NoError(t, err)

	state, err := ReadHeader(bytes.NewReader(buffer.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, V2, state.Format)
	assert.Equal(t, cache.Counts, state.Counts)
	assert.True(t, state.Matches(cache.ModTime, 300))
	assert.False(t, state.Matches(cache.ModTime, 301))

	back, err := Read(bytes.NewReader(buffer.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, cache.Records, back.Records)
	assert.Equal(t, cache.Counts, back.Counts)
}

func TestWriteEmpty(t *testing.T) {
	cache := &Cache{State: NewState()}
	buffer := &bytes.Buffer{}
	require.NoError(t, Write(buffer, cache))
	assert.Equal(t, HeaderSize+4, buffer.Len())

	back, err := Read(buffer)
	require.NoError(t, err)
	assert.Empty(t, back.Records)
	assert.True(t, back.ModTime.IsZero())
}

func TestWriteInconsistentCounts(t *testing.T) {
	cache := sampleCache()
	cache.Total = 3
	err := Write(&bytes.Buffer{}, cache)
	assert.Error(t, err)
}

func TestReadLegacyFormat(t *testing.T) {
	state := sampleCache().State
	state.Format = V1
	header := encodeHeader(state)

	peek, err := ReadHeader(bytes.NewReader(header))
	require.NoError(t, err)
	assert.Equal(t, V1, peek.Format)
	assert.Equal(t, state.Counts, peek.Counts)

	_, err = Read(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestReadInvalid(t *testing.T) {
	valid := &bytes.Buffer{}
	require.NoError(t, Write(valid, sampleCache()))

	badCounts := encodeHeader(State{Format: V2, Counts: Counts{Total: 1, Undeleted: 2}})

	wrongRecordCount := append([]byte{}, valid.Bytes()...)
	binary.LittleEndian.PutUint32(wrongRecordCount[HeaderSize:], 5)

	testData := []struct {
		name   string
		input  []byte
		target error
	}{
		{"empty", []byte{}, ErrCorrupt},
		{"unknown tag", []byte("XXXX"), ErrUnknownFormat},
		{"unknown full header", append([]byte("XXXX"), make([]byte, HeaderSize)...), ErrUnknownFormat},
		{"truncated header", valid.Bytes()[:HeaderSize-1], ErrCorrupt},
		{"missing record count", valid.Bytes()[:HeaderSize], ErrCorrupt},
		{"truncated records", valid.Bytes()[:HeaderSize+4+10], ErrCorrupt},
		{"bad counts", badCounts, ErrCorrupt},
		{"wrong record count", wrongRecordCount, ErrCorrupt},
	}
	for _, testItem := range testData {
		t.Run(testItem.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(testItem.input))
			assert.ErrorIs(t, err, testItem.target)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".inbox.summary")

	cache := sampleCache()
	require.NoError(t, Save(path, cache))

	state, err := Peek(path)
	require.NoError(t, err)
	assert.Equal(t, cache.Counts, state.Counts)

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cache.Records, back.Records)

	// overwrite
	cache.Records = cache.Records[:1]
	cache.Counts = Counts{Total: 1, DeletedBytes: 120}
	require.NoError(t, Save(path, cache))
	back, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, back.Records, 1)

	// no temporary file left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCounts(t *testing.T) {
	counts := Counts{}
	counts.Add(Counts{Total: 1, Undeleted: 1, Unread: 1})
	counts.Add(Counts{Total: 1, DeletedBytes: 50})
	assert.Equal(t, Counts{Total: 2, Undeleted: 1, Unread: 1, DeletedBytes: 50}, counts)
	assert.Equal(t, uint32(1), counts.Deleted())
	assert.NoError(t, counts.Check())

	require.NoError(t, counts.Sub(Counts{Total: 1, DeletedBytes: 50}))
	assert.Equal(t, Counts{Total: 1, Undeleted: 1, Unread: 1}, counts)

	err := counts.Sub(Counts{Total: 1, Undeleted: 1, Unread: 2})
	assert.Error(t, err)
	// unchanged after an error
	assert.Equal(t, Counts{Total: 1, Undeleted: 1, Unread: 1}, counts)

	assert.Error(t, Counts{Total: 1, Undeleted: 2}.Check())
	assert.Error(t, Counts{Total: 2, Undeleted: 1, Unread: 2}.Check())
}
