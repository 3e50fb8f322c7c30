// Package buildid reads the build ID of an ELF64 little-endian object file
// from the notes in its PT_NOTE program segments.
package buildid

import (
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/polarsignals/elfget/pkg/elfutils"
)

// NoteType is the n_type of an ELF note carrying a build ID.
type NoteType uint32

const (
	NoteTypeGNU NoteType = 3 // NT_GNU_BUILD_ID
	NoteTypeGo  NoteType = 4 // NT_GO_BUILD_ID
)

func (t NoteType) String() string {
	switch t {
	case NoteTypeGNU:
		return "gnu"
	case NoteTypeGo:
		return "go"
	}
	return fmt.Sprintf("NoteType(%d)", uint32(t))
}

func (t NoteType) recognized() bool {
	return t == NoteTypeGNU || t == NoteTypeGo
}

// ELF note format constants.
const (
	elfMagic       = elf.ELFMAG     // "\x7fELF"
	elfClass       = elf.ELFCLASS64 // e_ident[EI_CLASS]
	ptNote         = elf.PT_NOTE    // p_type of note segments
	identSize      = elf.EI_NIDENT  // e_ident
	fileHeaderSize = 48             // Elf64_Ehdr after e_ident
	progHeaderSize = 56             // Elf64_Phdr
	noteHeaderSize = 12             // Elf64_Nhdr
	noteAlign      = 4              // n_namesz and n_descsz padding
)

var (
	ErrNotELF           = errors.New("not an ELF64 file: wrong header")
	ErrWrongClass       = errors.New("not an ELF64 file: wrong class")
	ErrNoProgramHeaders = errors.New("program headers not found")
	ErrNotFound         = errors.New("program header PT_NOTE with a build ID note not found")
)

// BuildID is a build ID rendered as lowercase hex.
type BuildID struct {
	ID   string
	Type NoteType
}

// fileHeader is the part of Elf64_Ehdr that follows e_ident.
type fileHeader struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type noteHeader struct {
	Namesz uint32
	Descsz uint32
	Type   NoteType
}

// FromFile opens the file at path and extracts its build ID.
func FromFile(path string) (BuildID, error) {
	f, err := elfutils.Open(path)
	if err != nil {
		return BuildID{}, err
	}
	defer f.Close()

	return Extract(f)
}

// Extract returns the first GNU or Go build ID note found, in program header
// order, in the PT_NOTE segments of the ELF64 file read from r.
func Extract(r io.ReadSeeker) (BuildID, error) {
	hdr, err := readFileHeader(r)
	if err != nil {
		return BuildID{}, err
	}
	if hdr.Phoff == 0 {
		return BuildID{}, ErrNoProgramHeaders
	}

	for i := uint64(0); i < uint64(hdr.Phnum); i++ {
		if err := seekTo(r, hdr.Phoff+i*progHeaderSize); err != nil {
			return BuildID{}, fmt.Errorf("failed to seek to program header %d: %w", i, err)
		}
		var prog elf.Prog64
		if err := binary.Read(r, binary.LittleEndian, &prog); err != nil {
			return BuildID{}, fmt.Errorf("failed to read program header %d: %w", i, err)
		}
		if elf.ProgType(prog.Type) != ptNote {
			continue
		}

		id, ok, err := scanNotes(r, prog.Off, prog.Filesz)
		if err != nil {
			return BuildID{}, fmt.Errorf("failed to scan PT_NOTE segment %d: %w", i, err)
		}
		if ok {
			return id, nil
		}
	}
	return BuildID{}, ErrNotFound
}

func readFileHeader(r io.ReadSeeker) (fileHeader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fileHeader{}, fmt.Errorf("failed to seek to ELF header: %w", err)
	}

	var ident [identSize]byte
	if _, err := io.ReadFull(r, ident[:]); err != nil {
		return fileHeader{}, fmt.Errorf("failed to read ELF identification: %w", err)
	}
	if string(ident[:len(elfMagic)]) != elfMagic {
		return fileHeader{}, ErrNotELF
	}
	if elf.Class(ident[elf.EI_CLASS]) != elfClass {
		return fileHeader{}, ErrWrongClass
	}

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fileHeader{}, fmt.Errorf("failed to read ELF header: %w", err)
	}
	return hdr, nil
}

// scanNotes walks the notes of the segment at [off, off+size) until it finds
// a build ID note. The bound is only checked before each note header; a note
// whose sizes overrun the segment is read as long as the file has the bytes.
func scanNotes(r io.ReadSeeker, off, size uint64) (BuildID, bool, error) {
	if size > math.MaxUint64-off {
		return BuildID{}, false, fmt.Errorf("segment %#x+%#x out of range", off, size)
	}
	end := off + size
	if err := seekTo(r, off); err != nil {
		return BuildID{}, false, err
	}

	for pos := off; pos < end; {
		var nhdr noteHeader
		if err := binary.Read(r, binary.LittleEndian, &nhdr); err != nil {
			return BuildID{}, false, fmt.Errorf("failed to read note header at %#x: %w", pos, err)
		}
		if err := skip(r, roundUp4(nhdr.Namesz)); err != nil {
			return BuildID{}, false, fmt.Errorf("failed to read note name at %#x: %w", pos, err)
		}
		desc, err := readN(r, roundUp4(nhdr.Descsz))
		if err != nil {
			return BuildID{}, false, fmt.Errorf("failed to read note descriptor at %#x: %w", pos, err)
		}
		if nhdr.Type.recognized() {
			return BuildID{ID: hex.EncodeToString(desc[:nhdr.Descsz]), Type: nhdr.Type}, true, nil
		}

		cur, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return BuildID{}, false, err
		}
		pos = uint64(cur)
	}
	return BuildID{}, false, nil
}

// roundUp4 returns n rounded up to the next multiple of the note alignment.
func roundUp4(n uint32) uint64 {
	v := uint64(n)
	if v%noteAlign != 0 {
		v = (v/noteAlign + 1) * noteAlign
	}
	return v
}

func seekTo(r io.Seeker, off uint64) error {
	if off > math.MaxInt64 {
		return fmt.Errorf("offset %#x out of range", off)
	}
	_, err := r.Seek(int64(off), io.SeekStart)
	return err
}

func skip(r io.Reader, n uint64) error {
	if n > math.MaxInt64 {
		return fmt.Errorf("size %d out of range", n)
	}
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}

// readN reads exactly n bytes. The buffer grows with the data actually read,
// so a corrupt size does not allocate up front.
func readN(r io.Reader, n uint64) ([]byte, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("size %d out of range", n)
	}
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) != n {
		if len(buf) == 0 {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}
