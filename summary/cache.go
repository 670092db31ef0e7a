package summary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadHeader reads and checks the header of a summary file
func ReadHeader(reader io.Reader) (State, error) {
	buffer := make([]byte, HeaderSize)
	n, err := io.ReadFull(reader, buffer)
	if err != nil {
		if n == 0 && err == io.EOF {
			return State{}, fmt.Errorf("%w: empty file", ErrCorrupt)
		}
		if err == io.ErrUnexpectedEOF && Detect(buffer[:n]) == Unknown {
			return State{}, fmt.Errorf("%w: %q", ErrUnknownFormat, buffer[:min(n, tagSize)])
		}
		return State{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decodeHeader(buffer)
}

// Read loads a whole summary file: header and message records
func Read(reader io.Reader) (*Cache, error) {
	state, err := ReadHeader(reader)
	if err != nil {
		return nil, err
	}
	decoder, found := registry[state.Format]
	if !found {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrUnknownFormat, state.Format)
	}
	return decoder.decode(reader, state)
}

// Write saves the cache in the current format
func Write(writer io.Writer, cache *Cache) error {
	if cache == nil {
		return fmt.Errorf("cannot write a nil summary")
	}
	if int(cache.Total) != len(cache.Records) {
		return fmt.Errorf("summary counts %d messages but holds %d records", cache.Total, len(cache.Records))
	}
	state := cache.State
	state.Format = Current
	_, err := writer.Write(encodeHeader(state))
	if err != nil {
		return err
	}
	return encodeRecords(writer, cache.Records)
}

// Peek reads the header of the summary file at path
func Peek(path string) (State, error) {
	file, err := os.Open(path)
	if err != nil {
		return State{}, err
	}
	defer file.Close()

	return ReadHeader(file)
}

// Load reads the summary file at path
func Load(path string) (*Cache, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Read(bufio.NewReader(file))
}

// Save writes the summary file into a temporary file first, then replaces the file at path
func Save(path string, cache *Cache) error {
	dir, name := filepath.Split(path)
	temp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create summary file: %w", err)
	}
	tempName := temp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tempName)
	}()

	buffer := bufio.NewWriter(temp)
	err = Write(buffer, cache)
	if err == nil {
		err = buffer.Flush()
	}
	if err != nil {
		_ = temp.Close()
		return fmt.Errorf("cannot write summary file: %w", err)
	}
	err = temp.Close()
	if err != nil {
		return fmt.Errorf("cannot write summary file: %w", err)
	}
	err = os.Rename(tempName, path)
	if err != nil {
		return fmt.Errorf("cannot replace summary file: %w", err)
	}
	return nil
}
