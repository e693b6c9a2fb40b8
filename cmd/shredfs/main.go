package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shredfs/shredfs/config"
	"github.com/shredfs/shredfs/freespace"
	"github.com/shredfs/shredfs/namewipe"
	"github.com/shredfs/shredfs/wipe"
)

// globalOpts is the configuration loaded once at startup; subcommand
// actions only take a *cli.Context, so this is how they reach it.
var globalOpts *config.Options

func main() {
	opts, err := config.Load()
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
	globalOpts = opts

	app := &cli.App{
		Usage: "Securely erase files, file names, and free space on a volume",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "whitelist",
				Usage: "CSV file of paths that must never be touched",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "wipe-file",
				Usage:     "overwrite a file's content in place, including clusters it no longer occupies",
				ArgsUsage: "PATH",
				Action:    wipeFileAction,
			},
			{
				Name:      "delete",
				Usage:     "remove a file, optionally shredding its content and name first",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "shred", Value: opts.Shred},
					&cli.BoolFlag{Name: "ignore-missing"},
				},
				Action: deleteAction,
			},
			{
				Name:      "wipe-free-space",
				Usage:     "fill a volume's free space with zeros, then clean up",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "fat32"},
				},
				Action: wipeFreeSpaceAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// loadWhitelist reads the --whitelist file named on the parent app, if any,
// and rejects the operation up front when target is protected.
func loadWhitelist(c *cli.Context, target string) error {
	path := c.String("whitelist")
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening whitelist: %w", err)
	}
	defer f.Close()

	wl, err := config.LoadWhitelist(f)
	if err != nil {
		return fmt.Errorf("parsing whitelist: %w", err)
	}
	if wl.IsWhitelisted(target) {
		return fmt.Errorf("%s is whitelisted, refusing to touch it", target)
	}
	return nil
}

func wipeFileAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("wipe-file requires a PATH argument", 1)
	}
	if err := loadWhitelist(c.Parent(), path); err != nil {
		return cli.Exit(err, 1)
	}
	return wipe.FileWipe(defaultOpener(), path)
}

func deleteAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("delete requires a PATH argument", 1)
	}
	if err := loadWhitelist(c.Parent(), path); err != nil {
		return cli.Exit(err, 1)
	}
	return namewipe.Delete(defaultOpener(), path, c.Bool("shred"), c.Bool("ignore-missing"))
}

func wipeFreeSpaceAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("wipe-free-space requires a PATH argument", 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	idleInterval := time.Duration(globalOpts.FreeSpaceIdleMillis) * time.Millisecond
	progress, wait := freespace.WipePath(ctx, defaultOpener(), path, c.Bool("fat32"), idleInterval)
	for p := range progress {
		fmt.Printf("\r%.1f%% done, %d files, eta %ds", p.DoneFraction*100, p.FilesWritten, p.ETASeconds)
	}
	fmt.Println()
	return wait()
}
