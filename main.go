package main

import (
	"fmt"
	"io"
	"os"

	"github.com/polarsignals/elfget/pkg/buildid"
	"github.com/polarsignals/elfget/pkg/logger"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type flags struct {
	LogLevel  string `kong:"enum='error,warn,info,debug',help='Log level.',default='info'"`
	LogFormat string `kong:"enum='logfmt,json',help='Log format.',default='logfmt'"`
	Path      string `kong:"required,arg,name='path',help='File path to the ELF64 object file to read the build ID from.',type:'path'"`
}

func main() {
	flags := flags{}
	_ = kong.Parse(&flags,
		kong.Name("elfget"),
		kong.Description("Get a build ID from an ELF64 file."),
	)
	l := logger.NewLogger(flags.LogLevel, flags.LogFormat, "")
	if err := run(os.Stdout, l, flags.Path); err != nil {
		level.Error(l).Log("msg", "failed to get build ID", "path", flags.Path, "err", err)
		os.Exit(1)
	}
}

func run(w io.Writer, l log.Logger, path string) error {
	id, err := buildid.FromFile(path)
	if err != nil {
		return err
	}
	level.Debug(l).Log("msg", "found build ID", "path", path, "type", id.Type, "id", id.ID)

	if _, err := fmt.Fprintln(w, id.ID); err != nil {
		return fmt.Errorf("failed to write build ID: %w", err)
	}
	return nil
}
