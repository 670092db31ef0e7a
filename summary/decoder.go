package summary

import (
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxRecords protects against allocating from a corrupted count
const maxRecords = 1 << 24

type headerOnlyDecoder struct{}

func (d headerOnlyDecoder) decode(reader io.Reader, state State) (*Cache, error) {
	return nil, fmt.Errorf("%w: format %s", ErrNoRecords, state.Format)
}

type recordsDecoder struct{}

func (d recordsDecoder) decode(reader io.Reader, state State) (*Cache, error) {
	countBuffer := make([]byte, 4)
	if _, err := io.ReadFull(reader, countBuffer); err != nil {
		return nil, fmt.Errorf("%w: cannot read record count: %v", ErrCorrupt, err)
	}
	count := binary.LittleEndian.Uint32(countBuffer)
	if count > maxRecords || count != state.Total {
		return nil, fmt.Errorf("%w: %d records for %d messages", ErrCorrupt, count, state.Total)
	}
	cache := &Cache{
		State:   state,
		Records: make([]Record, 0, count),
	}
	if count == 0 {
		return cache, nil
	}
	inflate, err := zlib.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer inflate.Close()

	decoder := gob.NewDecoder(inflate)
	for i := uint32(0); i < count; i++ {
		record := Record{}
		err = decoder.Decode(&record)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: only %d records out of %d", ErrCorrupt, i, count)
			}
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		cache.Records = append(cache.Records, record)
	}
	return cache, nil
}

func encodeRecords(writer io.Writer, records []Record) error {
	countBuffer := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuffer, uint32(len(records)))
	_, err := writer.Write(countBuffer)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	deflate := zlib.NewWriter(writer)
	encoder := gob.NewEncoder(deflate)
	for i := range records {
		err = encoder.Encode(&records[i])
		if err != nil {
			_ = deflate.Close()
			return err
		}
	}
	err = deflate.Close()
	if err != nil {
		return fmt.Errorf("error closing zlib writer: %w", err)
	}
	return nil
}
