package elfutils

import (
	"fmt"
	"io"
	"os"

	bufra "github.com/avvmoto/buf-readerat"
)

// readBufferSize is the read-ahead of the buffered ReaderAt. Headers and
// notes are small, so a single page covers most lookups.
const readBufferSize = 4096

// File is an opened object file exposed as a random-access byte stream.
type File struct {
	*io.SectionReader

	f *os.File
}

// Open opens filePath for random-access reading. The caller must Close it.
func Open(filePath string) (*File, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", filePath, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error reading file info of %s: %w", filePath, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("error opening %s: is a directory", filePath)
	}

	// Advisory only, reads work the same without it.
	_ = adviseRandomAccess(f)

	return &File{
		SectionReader: io.NewSectionReader(bufra.NewBufReaderAt(f, readBufferSize), 0, fi.Size()),
		f:             f,
	}, nil
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	return f.f.Close()
}
