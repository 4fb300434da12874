// Command dsrsadmin is the admin CLI surface (§6.1). Subcommand dispatch
// lives here; the actual work is delegated to the internal packages so this
// file stays a thin urfave/cli wiring layer.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/rust-lang/docs.rs-sub002/internal/archive"
	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
	"github.com/rust-lang/docs.rs-sub002/internal/cdn"
	"github.com/rust-lang/docs.rs-sub002/internal/config"
	"github.com/rust-lang/docs.rs-sub002/internal/queue"
	"github.com/rust-lang/docs.rs-sub002/internal/storage"
	"github.com/rust-lang/docs.rs-sub002/internal/surrogate"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("service", "dsrsadmin").Logger()

func main() {
	app := cli.NewApp()
	app.Name = "dsrsadmin"
	app.Usage = "docs.rs-sub002 admin operations"
	app.Commands = []cli.Command{
		buildCommand(),
		databaseCommand(),
		queueCommand(),
		cdnCommand(),
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openCatalog() (*catalog.Store, catalog.ServiceConfig, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database == nil {
		return nil, nil, fmt.Errorf("DOCSRS_DATABASE_URL is not configured")
	}
	store, err := catalog.Open(cfg.Database.ConnString, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, nil, err
	}
	return store, catalog.NewPostgresServiceConfig(store.DB()), nil
}

func openQueue() (*queue.Queue, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	if cfg.Database == nil || cfg.BuildQueue == nil {
		return nil, fmt.Errorf("database and build queue must both be configured")
	}
	store, err := catalog.Open(cfg.Database.ConnString, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	svcCfg := catalog.NewPostgresServiceConfig(store.DB())
	return queue.New(store.DB(), svcCfg, cfg.BuildQueue.BuildAttempts, cfg.BuildQueue.DelayBetweenAttempts, cfg.BuildQueue.PriorityManualFromCrate), nil
}

// build set-toolchain / lock / unlock ---------------------------------

func buildCommand() cli.Command {
	return cli.Command{
		Name:  "build",
		Usage: "manage the build toolchain and queue lock",
		Subcommands: []cli.Command{
			{
				Name:      "set-toolchain",
				Usage:     "record the active rustdoc toolchain name",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one argument: <name>")
					}
					_, cfg, err := openCatalog()
					if err != nil {
						return err
					}
					return cfg.Set(context.Background(), catalog.ConfigToolchain, c.Args().Get(0))
				},
			},
			{
				Name:  "lock",
				Usage: "set the queue_locked flag",
				Action: func(c *cli.Context) error {
					q, err := openQueue()
					if err != nil {
						return err
					}
					return q.Lock(context.Background())
				},
			},
			{
				Name:  "unlock",
				Usage: "clear the queue_locked flag",
				Action: func(c *cli.Context) error {
					q, err := openQueue()
					if err != nil {
						return err
					}
					return q.Unlock(context.Background())
				},
			},
		},
	}
}

// database migrate / repackage / update-latest-version-id / blacklist /
// limits ----------------------------------------------------------------

func databaseCommand() cli.Command {
	return cli.Command{
		Name:  "database",
		Usage: "catalog and storage maintenance operations",
		Subcommands: []cli.Command{
			{
				Name:      "migrate",
				Usage:     "run pending database migrations (interface only: migrations are out of scope)",
				ArgsUsage: "[version]",
				Action: func(c *cli.Context) error {
					return fmt.Errorf("database migrations are not part of this core: external migration tool required")
				},
			},
			{
				Name:  "repackage",
				Usage: "convert flat-storage releases to archive storage",
				Flags: []cli.Flag{
					cli.IntFlag{Name: "limit", Value: 0, Usage: "maximum number of releases to repackage (0 = unlimited)"},
				},
				Action: repackageAction,
			},
			{
				Name:  "update-latest-version-id",
				Usage: "refresh crate.latest_version_id for every crate",
				Action: func(c *cli.Context) error {
					catStore, _, err := openCatalog()
					if err != nil {
						return err
					}
					return catStore.RefreshAllLatestVersionIDs(context.Background())
				},
			},
			{
				Name:  "update-repository-fields",
				Usage: "refresh repository metadata fields (out of scope: forge stats fetch internals)",
				Action: func(c *cli.Context) error {
					return fmt.Errorf("repository-forge statistics fetching is an external collaborator; not implemented in this core")
				},
			},
			{
				Name:  "backfill-repository-stats",
				Usage: "backfill repository stats for crates missing them (best-effort, out of scope internals)",
				Action: func(c *cli.Context) error {
					return fmt.Errorf("repository-forge statistics fetching is an external collaborator; not implemented in this core")
				},
			},
			{
				Name:      "update-crate-registry-fields",
				Usage:     "refresh registry-sourced fields for one crate",
				ArgsUsage: "<CRATE>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one argument: <CRATE>")
					}
					return fmt.Errorf("registry API client is an external collaborator; not implemented in this core")
				},
			},
			{
				Name:  "blacklist",
				Usage: "maintain the out-of-band crate-name deny list",
				Subcommands: []cli.Command{
					{Name: "list", Action: blacklistList},
					{Name: "add", ArgsUsage: "<CRATE>", Action: blacklistAdd},
					{Name: "remove", ArgsUsage: "<CRATE>", Action: blacklistRemove},
				},
			},
			{
				Name:  "limits",
				Usage: "per-crate sandbox build limits",
				Subcommands: []cli.Command{
					{Name: "get", ArgsUsage: "<CRATE>", Action: limitsGet},
					{Name: "list", Action: limitsList},
					{
						Name:      "set",
						ArgsUsage: "<CRATE>",
						Flags: []cli.Flag{
							cli.Int64Flag{Name: "memory", Usage: "memory limit in bytes"},
							cli.IntFlag{Name: "targets", Usage: "maximum build targets"},
							cli.IntFlag{Name: "timeout", Usage: "build timeout in seconds"},
						},
						Action: limitsSet,
					},
					{Name: "remove", ArgsUsage: "<CRATE>", Action: limitsRemove},
				},
			},
		},
	}
}

func repackageAction(c *cli.Context) error {
	limit := c.Int("limit")
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	backend := storage.NewFSBackend(cfg.Storage.FSRoot)
	store := storage.NewStore(backend)

	releases, err := catStore.FlatStorageReleases(context.Background(), limit)
	if err != nil {
		return err
	}

	progress := mpb.New(mpb.WithWidth(40))
	bar := progress.AddBar(int64(len(releases)),
		mpb.PrependDecorators(decor.Name("repackage")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")))

	ctx := context.Background()
	for _, rel := range releases {
		targets := make([]archive.PrefixTarget, 0, 2)
		for _, prefix := range []string{"rustdoc", "sources"} {
			flatPrefix := prefix + "/" + rel.Name + "/" + rel.Version
			targets = append(targets, archive.PrefixTarget{
				FlatPrefix:  flatPrefix,
				ArchivePath: flatPrefix + ".zip",
				IndexPath:   flatPrefix + ".zip.index",
			})
		}
		if err := archive.RepackageRelease(ctx, catStore, store, rel.ID, targets, catalog.CompressionZstd); err != nil {
			log.Error().Err(err).Str("crate", rel.Name).Str("version", rel.Version).Msg("repackage failed")
		}
		bar.Increment()
	}
	progress.Wait()
	return nil
}

func blacklistList(c *cli.Context) error {
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	names, err := catStore.ListBlacklist(context.Background())
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func blacklistAdd(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <CRATE>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	return catStore.AddToBlacklist(context.Background(), c.Args().Get(0))
}

func blacklistRemove(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <CRATE>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	return catStore.RemoveFromBlacklist(context.Background(), c.Args().Get(0))
}

func limitsGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <CRATE>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	limits, err := catStore.GetSandboxLimits(context.Background(), c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Printf("memory=%d targets=%d timeout=%ds\n", limits.MemoryBytes, limits.MaxTargets, limits.TimeoutSeconds)
	return nil
}

func limitsList(c *cli.Context) error {
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	all, err := catStore.ListSandboxLimits(context.Background())
	if err != nil {
		return err
	}
	for crate, limits := range all {
		fmt.Printf("%s: memory=%d targets=%d timeout=%ds\n", crate, limits.MemoryBytes, limits.MaxTargets, limits.TimeoutSeconds)
	}
	return nil
}

func limitsSet(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <CRATE>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	limits := catalog.SandboxLimits{
		MemoryBytes:    c.Int64("memory"),
		MaxTargets:     c.Int("targets"),
		TimeoutSeconds: c.Int("timeout"),
	}
	return catStore.SetSandboxLimits(context.Background(), c.Args().Get(0), limits)
}

func limitsRemove(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <CRATE>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	return catStore.RemoveSandboxLimits(context.Background(), c.Args().Get(0))
}

// queue add / default-priority / rebuild-broken-nightly ------------------

func queueCommand() cli.Command {
	return cli.Command{
		Name:  "queue",
		Usage: "build queue administration",
		Subcommands: []cli.Command{
			{
				Name:      "add",
				Usage:     "enqueue a crate version for build",
				ArgsUsage: "<CRATE> <VERSION>",
				Flags: []cli.Flag{
					cli.IntFlag{Name: "p", Value: 5, Usage: "priority"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("expected exactly two arguments: <CRATE> <VERSION>")
					}
					catStore, _, err := openCatalog()
					if err != nil {
						return err
					}
					blacklisted, err := catStore.ListBlacklist(context.Background())
					if err != nil {
						return err
					}
					norm, err := catalog.NormalizeCrateName(c.Args().Get(0))
					if err != nil {
						return err
					}
					for _, b := range blacklisted {
						if b == norm {
							return fmt.Errorf("crate %q is blacklisted", norm)
						}
					}
					q, err := openQueue()
					if err != nil {
						return err
					}
					return q.AddCrate(context.Background(), c.Args().Get(0), c.Args().Get(1), c.Int("p"), "")
				},
			},
			{
				Name:  "default-priority",
				Usage: "manage name-pattern default priorities (SQL LIKE syntax)",
				Subcommands: []cli.Command{
					{Name: "get", ArgsUsage: "<PATTERN>", Action: defaultPriorityGet},
					{Name: "list", Action: defaultPriorityList},
					{Name: "set", ArgsUsage: "<PATTERN> <PRIORITY>", Action: defaultPrioritySet},
					{Name: "remove", ArgsUsage: "<PATTERN>", Action: defaultPriorityRemove},
				},
			},
			{
				Name:      "rebuild-broken-nightly",
				Usage:     "requeue releases whose nightly build broke in a date range",
				ArgsUsage: "",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "s", Usage: "start date YYYY-MM-DD (required)"},
					cli.StringFlag{Name: "e", Usage: "end date YYYY-MM-DD (exclusive, default start+1day)"},
				},
				Action: rebuildBrokenNightly,
			},
		},
	}
}

func defaultPriorityGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <PATTERN>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	p, ok, err := catStore.GetDefaultPriority(context.Background(), c.Args().Get(0))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no default priority set for pattern %q", c.Args().Get(0))
	}
	fmt.Println(p)
	return nil
}

func defaultPriorityList(c *cli.Context) error {
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	all, err := catStore.ListDefaultPriorities(context.Background())
	if err != nil {
		return err
	}
	for pattern, p := range all {
		fmt.Printf("%s: %d\n", pattern, p)
	}
	return nil
}

func defaultPrioritySet(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected exactly two arguments: <PATTERN> <PRIORITY>")
	}
	p, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("priority must be an integer: %w", err)
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	return catStore.SetDefaultPriority(context.Background(), c.Args().Get(0), p)
}

func defaultPriorityRemove(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <PATTERN>")
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	return catStore.RemoveDefaultPriority(context.Background(), c.Args().Get(0))
}

func rebuildBrokenNightly(c *cli.Context) error {
	startStr := c.String("s")
	if startStr == "" {
		return fmt.Errorf("-s start date is required")
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return fmt.Errorf("invalid -s date: %w", err)
	}
	end := start.AddDate(0, 0, 1)
	if endStr := c.String("e"); endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return fmt.Errorf("invalid -e date: %w", err)
		}
	}
	catStore, _, err := openCatalog()
	if err != nil {
		return err
	}
	q, err := openQueue()
	if err != nil {
		return err
	}
	broken, err := catStore.BrokenNightlyReleases(context.Background(), start, end)
	if err != nil {
		return err
	}
	for _, rel := range broken {
		if err := q.AddCrate(context.Background(), rel.Name, rel.Version, 0, ""); err != nil {
			log.Error().Err(err).Str("crate", rel.Name).Str("version", rel.Version).Msg("requeue failed")
		}
	}
	fmt.Printf("requeued %d release(s)\n", len(broken))
	return nil
}

// cdn purge ---------------------------------------------------------------

func cdnPurge(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: <SURROGATE_KEY>")
	}
	key, err := surrogate.NewKey(c.Args().Get(0))
	if err != nil {
		return err
	}
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	if cfg.CDN == nil {
		return fmt.Errorf("DOCSRS_CDN_API_TOKEN is not configured")
	}
	backend := cdn.NewFastlyBackend(nil, cfg.CDN.BaseURL, cfg.CDN.ServiceID, cfg.CDN.APIToken)
	purger := cdn.NewPurger(backend, log)
	purger.PurgeAll(context.Background(), []surrogate.Key{key})
	return nil
}

func cdnCommand() cli.Command {
	return cli.Command{
		Name:  "cdn",
		Usage: "CDN cache administration",
		Subcommands: []cli.Command{
			{
				Name:      "purge",
				Usage:     "purge a single surrogate key",
				ArgsUsage: "<SURROGATE_KEY>",
				Action:    cdnPurge,
			},
		},
	}
}
