// Package elfwriter writes little-endian ELF64 files made of a file header,
// a program header table and segment payloads. It produces object files with
// arbitrary PT_NOTE layouts, including malformed ones, for build ID readers to
// be tested against.
//
// Only what is needed to describe segments is written, notably missing:
// - Section headers (e_shoff and e_shnum are zero)
// - Virtual addresses and memory sizes of segments
package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	fileHeaderSize = 64
	progHeaderSize = 56
	noteAlign      = 4
)

// WriteCloserSeeker is the union of io.Writer, io.Closer and io.Seeker.
type WriteCloserSeeker interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Note is a single entry of a PT_NOTE segment.
type Note struct {
	Type elf.NType
	Name string
	Data []byte
}

// Segment is a program segment. Notes are encoded when present, otherwise
// Data is written as is.
type Segment struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Notes []Note
	Data  []byte
}

// Writer writes ELF files.
type Writer struct {
	w         WriteCloserSeeker
	byteOrder binary.ByteOrder
	class     elf.Class

	skipProgHeaderOff bool

	Err error

	Progs []Segment

	seekProgHeader int64 // phoff
	seekProgNum    int64 // phnum
}

// New creates a new Writer and writes the file header.
func New(w WriteCloserSeeker, opts ...Option) (*Writer, error) {
	wrt := &Writer{
		w:         w,
		byteOrder: binary.LittleEndian,
		class:     elf.ELFCLASS64,
	}
	for _, opt := range opts {
		opt(wrt)
	}

	if err := wrt.writeFileHeader(); err != nil {
		return nil, fmt.Errorf("failed to write file header: %w", err)
	}
	return wrt, nil
}

// Write writes the program header table followed by the segments.
func (w *Writer) Write() error {
	// +-------------------------------+
	// | ELF File Header               |
	// +-------------------------------+
	// | Program Header for segment #1 |
	// +-------------------------------+
	// | ...                           |
	// +-------------------------------+
	// | Segment #1 (4 byte aligned)   |
	// +-------------------------------+
	// | ...                           |
	// +-------------------------------+
	phoff := w.here()
	w.write(make([]byte, progHeaderSize*len(w.Progs)))

	progs := make([]elf.Prog64, 0, len(w.Progs))
	for _, s := range w.Progs {
		w.align(noteAlign)
		off := w.here()
		if len(s.Notes) > 0 {
			w.writeNotes(s.Notes)
		} else {
			w.write(s.Data)
		}
		progs = append(progs, elf.Prog64{
			Type:   uint32(s.Type),
			Flags:  uint32(s.Flags),
			Off:    uint64(off),
			Filesz: uint64(w.here() - off),
			Align:  noteAlign,
		})
	}
	if w.Err != nil {
		return w.Err
	}

	w.seek(phoff, io.SeekStart)
	for i := range progs {
		w.writeProgHeader(&progs[i])
	}
	w.patchFileHeader(phoff, len(progs))
	w.seek(0, io.SeekEnd)
	return w.Err
}

// writeNotes writes notes back to back. Name and descriptor are each padded
// to 4 bytes.
func (w *Writer) writeNotes(notes []Note) {
	for _, note := range notes {
		// typedef struct elf64_note {
		//   Elf64_Word n_namesz;	/* Name size */
		//   Elf64_Word n_descsz;	/* Content size */
		//   Elf64_Word n_type;	/* Content type */
		// } Elf64_Nhdr;
		name, err := unix.ByteSliceFromString(note.Name)
		if err != nil {
			if w.Err == nil {
				w.Err = fmt.Errorf("invalid note name %q: %w", note.Name, err)
			}
			return
		}
		w.u32(uint32(len(name)))
		w.u32(uint32(len(note.Data)))
		w.u32(uint32(note.Type))
		w.write(name)
		w.align(noteAlign)
		w.write(note.Data)
		w.align(noteAlign)
	}
}

// writeFileHeader writes the file header with e_phoff and e_phnum left to be
// patched by Write.
func (w *Writer) writeFileHeader() error {
	// e_ident
	w.write([]byte{
		0x7f, 'E', 'L', 'F', // Magic number
		byte(w.class),
		byte(elf.ELFDATA2LSB),
		byte(elf.EV_CURRENT),
		byte(elf.ELFOSABI_NONE),
		0,                   // ABI version
		0, 0, 0, 0, 0, 0, 0, // Padding
	})

	// type Header64 struct {
	// 	Ident     [EI_NIDENT]byte /* File identification. */
	// 	Type      uint16          /* File type. */
	// 	Machine   uint16          /* Machine architecture. */
	// 	Version   uint32          /* ELF format version. */
	// 	Entry     uint64          /* Entry point. */
	// 	Phoff     uint64          /* Program header file offset. */
	// 	Shoff     uint64          /* Section header file offset. */
	// 	Flags     uint32          /* Architecture-specific flags. */
	// 	Ehsize    uint16          /* Size of ELF header in bytes. */
	// 	Phentsize uint16          /* Size of program header entry. */
	// 	Phnum     uint16          /* Number of program header entries. */
	// 	Shentsize uint16          /* Size of section header entry. */
	// 	Shnum     uint16          /* Number of section header entries. */
	// 	Shstrndx  uint16          /* Section name strings section. */
	// }
	w.u16(uint16(elf.ET_EXEC))    // e_type
	w.u16(uint16(elf.EM_X86_64))  // e_machine
	w.u32(uint32(elf.EV_CURRENT)) // e_version
	w.u64(0)                      // e_entry
	w.seekProgHeader = w.here()
	w.u64(0)              // e_phoff
	w.u64(0)              // e_shoff
	w.u32(0)              // e_flags
	w.u16(fileHeaderSize) // e_ehsize
	w.u16(progHeaderSize) // e_phentsize
	w.seekProgNum = w.here()
	w.u16(0)                     // e_phnum
	w.u16(0)                     // e_shentsize
	w.u16(0)                     // e_shnum
	w.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx
	if w.Err != nil {
		return w.Err
	}

	// Sanity check, size of file header should be the same as ehsize
	if sz, _ := w.w.Seek(0, io.SeekCurrent); sz != fileHeaderSize {
		return errors.New("internal error, ELF header size")
	}
	return nil
}

func (w *Writer) patchFileHeader(phoff int64, phnum int) {
	if !w.skipProgHeaderOff {
		w.seek(w.seekProgHeader, io.SeekStart)
		w.u64(uint64(phoff))
	}
	w.seek(w.seekProgNum, io.SeekStart)
	w.u16(uint16(phnum))
}

func (w *Writer) writeProgHeader(prog *elf.Prog64) {
	// type Prog64 struct {
	// 	Type   uint32 /* Entry type. */
	// 	Flags  uint32 /* Access permission flags. */
	// 	Off    uint64 /* File offset of contents. */
	// 	Vaddr  uint64 /* Virtual address in memory image. */
	// 	Paddr  uint64 /* Physical address (not used). */
	// 	Filesz uint64 /* Size of contents in file. */
	// 	Memsz  uint64 /* Size of contents in memory. */
	// 	Align  uint64 /* Alignment in memory and file. */
	// }
	w.u32(prog.Type)
	w.u32(prog.Flags)
	w.u64(prog.Off)
	w.u64(prog.Vaddr)
	w.u64(prog.Paddr)
	w.u64(prog.Filesz)
	w.u64(prog.Memsz)
	w.u64(prog.Align)
}

// Close closes the WriteCloseSeeker.
func (w *Writer) Close() error {
	var err error
	if w.w != nil {
		err = w.w.Close()
	}
	return err
}

// here returns the current seek offset from the start of the file.
func (w *Writer) here() int64 {
	r, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// seek moves the cursor to the point calculated using offset and starting point.
func (w *Writer) seek(offset int64, whence int) {
	_, err := w.w.Seek(offset, whence)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

// align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) align(align int64) {
	off := w.here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.write(make([]byte, alignOff-off))
	}
}

func (w *Writer) write(buf []byte) {
	_, err := w.w.Write(buf)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u16(n uint16) {
	err := binary.Write(w.w, w.byteOrder, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u32(n uint32) {
	err := binary.Write(w.w, w.byteOrder, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u64(n uint64) {
	err := binary.Write(w.w, w.byteOrder, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}
