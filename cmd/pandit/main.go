/*
Command pandit creates, inspects and extracts kundli archives.

Usage:

	$ pandit [<flags>] <command> [<args> ...]

Use 'pandit help' to see more details.
*/
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/alecthomas/units"
	"github.com/fatih/color"

	"github.com/meigma/kundli"
)

// version is set at build time.
var version = "dev"

const defaultArchivePath = "comp.kl"

// app holds global flags and the output streams shared by all commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	archivePath  string
	verbose      bool
	parallel     bool
	threads      int
	fullLoad     bool
	noColor      bool
	mapThreshold units.Base2Bytes

	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) (*kingpin.Application, *app) {
	a := &app{stdout: stdout, stderr: stderr}

	kapp := kingpin.New("pandit", "Pandit archive tool for kundli archives.")
	kapp.Version(version)
	kapp.UsageWriter(stdout)
	kapp.ErrorWriter(stderr)

	kapp.Flag("archive", "Archive path.").Short('a').Default(defaultArchivePath).StringVar(&a.archivePath)
	kapp.Flag("verbose", "Enable verbose output.").Short('v').BoolVar(&a.verbose)
	kapp.Flag("parallel", "Use parallel compression and extraction.").Short('j').BoolVar(&a.parallel)
	kapp.Flag("threads", "Number of worker threads; implies --parallel.").Short('t').
		PreAction(a.enableParallel).IntVar(&a.threads)
	kapp.Flag("full-load", "Load the whole data section up front instead of lazily.").BoolVar(&a.fullLoad)
	kapp.Flag("map-threshold", "Memory-map lazily loaded data sections at least this large; 0 disables.").
		Default("100MiB").BytesVar(&a.mapThreshold)
	kapp.Flag("no-color", "Disable colored output.").BoolVar(&a.noColor)
	kapp.PreAction(a.initLogging)

	(&commandCreate{}).setup(kapp, a)
	(&commandExtend{}).setup(kapp, a)
	(&commandExtract{}).setup(kapp, a)
	(&commandList{}).setup(kapp, a)
	(&commandInfo{}).setup(kapp, a)
	(&commandRemove{}).setup(kapp, a)

	return kapp, a
}

func (a *app) enableParallel(*kingpin.ParseContext) error {
	a.parallel = true
	return nil
}

func (a *app) initLogging(*kingpin.ParseContext) error {
	a.logger = newLogger(a.stderr, a.verbose)
	return nil
}

// options returns the archive options derived from global flags.
func (a *app) options() []kundli.Option {
	return []kundli.Option{
		kundli.WithLogger(a.logger),
		kundli.WithVerbose(a.verbose),
		kundli.WithThreads(a.threads),
		kundli.WithMapThreshold(int64(a.mapThreshold)),
	}
}

// open loads the archive named by --archive.
func (a *app) open() (*kundli.Archive, error) {
	load := kundli.Load
	if a.fullLoad {
		load = kundli.LoadFull
	}
	arc, err := load(a.archivePath, a.options()...)
	if err != nil {
		return nil, fmt.Errorf("load archive %q: %w", a.archivePath, err)
	}
	return arc, nil
}

// write serializes arc to --archive, in parallel when requested.
func (a *app) write(arc *kundli.Archive) error {
	var err error
	if a.parallel {
		err = arc.CompressParallel(a.archivePath, a.threads)
	} else {
		err = arc.Compress(a.archivePath)
	}
	if err != nil {
		return fmt.Errorf("write archive %q: %w", a.archivePath, err)
	}
	return nil
}

func (a *app) colored(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if a.noColor {
		c.DisableColor()
	}
	return c
}

func main() {
	kapp, _ := newApp(os.Stdout, os.Stderr)
	if _, err := kapp.Parse(os.Args[1:]); err != nil {
		kapp.Fatalf("%v", err)
	}
}
