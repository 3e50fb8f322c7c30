package elfwriter

import "debug/elf"

type Option func(w *Writer)

// WithClass sets e_ident[EI_CLASS]. The layout stays ELF64.
func WithClass(c elf.Class) Option {
	return func(w *Writer) {
		w.class = c
	}
}

// WithoutProgramHeaderOffset leaves e_phoff zero while the program header
// table is still written.
func WithoutProgramHeaderOffset() Option {
	return func(w *Writer) {
		w.skipProgHeaderOff = true
	}
}
