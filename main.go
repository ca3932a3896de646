package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "legacyeditor",
		Usage: "reads, rewrites and cross-console-converts LCE save archives",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "convert a save archive to another console",
				ArgsUsage: "<save file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "source console", Required: true},
					&cli.StringFlag{Name: "to", Usage: "target console", Required: true},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path", Required: true},
				},
				Action: runConvert,
			},
			{
				Name:      "info",
				Usage:     "list the inner files of a save archive",
				ArgsUsage: "<save file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "source console", Required: true},
				},
				Action: runInfo,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runConvert(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("need a save file to work with")
	}
	src, err := ParseConsole(c.String("from"))
	if err != nil {
		return err
	}
	dst, err := ParseConsole(c.String("to"))
	if err != nil {
		return err
	}

	in, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	out, err := ConvertSave(in, src, dst)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), out, 0644); err != nil {
		return err
	}
	fmt.Printf("converted %s save to %s (%d bytes)\n", src, dst, len(out))
	return nil
}

func runInfo(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("need a save file to work with")
	}
	console, err := ParseConsole(c.String("from"))
	if err != nil {
		return err
	}

	in, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	archive, err := OpenSave(in, console)
	if err != nil {
		return err
	}

	fmt.Printf("oldest version: %d\n", archive.OldestVersion)
	fmt.Printf("current version: %d\n", archive.CurrentVersion)
	fmt.Printf("file count: %d\n", len(archive.Files))
	for i, file := range archive.Files {
		fmt.Printf("%.2d [%7d]: %s\n", i, len(file.Payload), file.fileName())
	}
	return nil
}
