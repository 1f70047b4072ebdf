package main

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/meigma/kundli"
)

type commandCreate struct {
	app   *app
	files []string
}

func (c *commandCreate) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("create", "Create an archive from files and directories.").Alias("compress").Alias("c")
	cmd.Arg("files", "Files and directories to add.").Required().StringsVar(&c.files)
	cmd.Action(c.run)
}

func (c *commandCreate) run(*kingpin.ParseContext) error {
	arc := kundli.Create(c.app.options()...)
	defer arc.Close()

	if err := addAll(arc, c.files); err != nil {
		return err
	}
	return c.app.write(arc)
}

type commandExtend struct {
	app   *app
	files []string
}

func (c *commandExtend) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("extend", "Add files to an existing archive.").Alias("e")
	cmd.Arg("files", "Files and directories to add.").Required().StringsVar(&c.files)
	cmd.Action(c.run)
}

func (c *commandExtend) run(*kingpin.ParseContext) error {
	arc, err := c.app.open()
	if err != nil {
		return err
	}
	defer arc.Close()

	if err := addAll(arc, c.files); err != nil {
		return err
	}
	return c.app.write(arc)
}

func addAll(arc *kundli.Archive, files []string) error {
	for _, f := range files {
		if _, err := arc.AddFile(f); err != nil {
			return fmt.Errorf("add %q: %w", f, err)
		}
	}
	return nil
}

type commandRemove struct {
	app   *app
	paths []string
}

func (c *commandRemove) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("remove", "Remove entries from an archive. Payload bytes are kept.").Alias("rm")
	cmd.Arg("paths", "Entry paths to remove.").Required().StringsVar(&c.paths)
	cmd.Action(c.run)
}

func (c *commandRemove) run(*kingpin.ParseContext) error {
	arc, err := c.app.open()
	if err != nil {
		return err
	}
	defer arc.Close()

	for _, p := range c.paths {
		if err := arc.RemoveFile(p); err != nil {
			return fmt.Errorf("remove %q: %w", p, err)
		}
	}
	return c.app.write(arc)
}

type commandExtract struct {
	app  *app
	dest string
	file string
}

func (c *commandExtract) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("extract", "Extract an archive.").Alias("x")
	cmd.Flag("file", "Extract only this entry, to the destination path.").Short('f').StringVar(&c.file)
	cmd.Arg("dest", "Destination directory, or output path with --file.").Default(".").StringVar(&c.dest)
	cmd.Action(c.run)
}

func (c *commandExtract) run(*kingpin.ParseContext) error {
	arc, err := c.app.open()
	if err != nil {
		return err
	}
	defer arc.Close()

	if c.file != "" {
		return arc.DecompressFile(c.file, c.dest)
	}

	var stats kundli.ExtractStats
	if c.app.parallel {
		stats, err = arc.DecompressParallel(c.dest, c.app.threads)
	} else {
		stats, err = arc.Decompress(c.dest)
	}
	if c.app.verbose || err != nil {
		fmt.Fprintf(c.app.stderr, "extracted %s files (%s), %s directories, %s symlinks; %d failed\n",
			humanize.Comma(int64(stats.Files)), humanize.IBytes(stats.Bytes),
			humanize.Comma(int64(stats.Dirs)), humanize.Comma(int64(stats.Symlinks)), stats.Failed)
	}
	return err
}

type commandList struct {
	app *app
}

func (c *commandList) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("list", "List archive entries.").Alias("ls").Alias("l")
	cmd.Action(c.run)
}

func (c *commandList) run(*kingpin.ParseContext) error {
	arc, err := c.app.open()
	if err != nil {
		return err
	}
	defer arc.Close()

	dirColor := c.app.colored(color.FgBlue, color.Bold)
	linkColor := c.app.colored(color.FgCyan)
	return arc.ListStyled(c.app.stdout, func(e kundli.Entry, name string) string {
		switch e.Type {
		case kundli.TypeDirectory:
			return dirColor.Sprint(name)
		case kundli.TypeSymlink:
			return linkColor.Sprint(name)
		}
		return name
	})
}

type commandInfo struct {
	app *app
}

func (c *commandInfo) setup(kapp *kingpin.Application, a *app) {
	c.app = a
	cmd := kapp.Command("info", "Show archive header and summary.").Alias("i")
	cmd.Action(c.run)
}

func (c *commandInfo) run(*kingpin.ParseContext) error {
	arc, err := c.app.open()
	if err != nil {
		return err
	}
	defer arc.Close()

	if _, err := fmt.Fprintf(c.app.stdout, "Archive: %s\n", c.app.archivePath); err != nil {
		return err
	}
	_, err = arc.Describe().WriteTo(c.app.stdout)
	return err
}
