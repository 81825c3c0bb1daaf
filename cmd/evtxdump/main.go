// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/evtxgo/evtx"
	"github.com/evtxgo/evtx/config"
)

func main() {
	dumpCmd := flag.NewFlagSet("dump", flag.ExitOnError)
	dumpFormat := dumpCmd.String("format", "", "Output flavor: xml or json (default from config)")
	dumpChecksums := dumpCmd.Bool("checksums", false, "Validate chunk and file CRC32 checksums")
	dumpParallelism := dumpCmd.Int("parallelism", 0, "Max concurrent chunk workers (0 = config/CPU default)")
	dumpConfigPath := dumpCmd.String("config", config.DefaultPath(), "Path to a YAML config file")
	dumpStats := dumpCmd.Bool("stats", false, "Print chunk/record stats to stderr after dumping")

	verCmd := flag.NewFlagSet("version", flag.ExitOnError)

	if len(os.Args) < 2 {
		showHelp()
	}

	switch os.Args[1] {
	case "dump":
		dumpCmd.Parse(os.Args[2:])
		if dumpCmd.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "dump: missing .evtx path")
			os.Exit(1)
		}
		if err := runDump(dumpCmd.Arg(0), *dumpFormat, *dumpChecksums, *dumpParallelism, *dumpConfigPath, *dumpStats); err != nil {
			fmt.Fprintln(os.Stderr, "evtxdump:", err)
			os.Exit(1)
		}

	case "version":
		verCmd.Parse(os.Args[2:])
		fmt.Println("You are using version 1.0.0")

	default:
		showHelp()
	}
}

func runDump(path, format string, checksums bool, parallelism int, configPath string, wantStats bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := cfg.ToOptions()
	if format == "xml" {
		opts.OutputFormat = evtx.OutputXML
	} else if format == "json" {
		opts.OutputFormat = evtx.OutputJSON
	}
	if checksums {
		opts.ValidateChecksums = true
	}
	if parallelism > 0 {
		opts.MaxParallelism = parallelism
	}

	f, err := evtx.Open(path, opts)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	events, stats, err := f.Parse()
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, ev := range events {
		fmt.Println(ev.Text)
		if ev.Diagnostic != "" {
			fmt.Fprintf(os.Stderr, "record %d (chunk %d): %s\n", ev.RecordID, ev.ChunkIndex, ev.Diagnostic)
		}
	}

	if wantStats {
		fmt.Fprintf(os.Stderr, "healthy=%d unhealthy=%d recovered=%d rendered=%d omitted=%d\n",
			stats.HealthyChunks, stats.UnhealthyChunks, stats.RecoveredChunks, stats.RecordsRendered, stats.RecordsOmitted)
	}

	return nil
}

func showHelp() {
	fmt.Print(
		`
╔═╗╦  ╦╔╦╗═╗ ╦  ╔╦╗╦ ╦╔╦╗╔═╗
║╣ ╚╗╔╝ ║ ╔╩╦╝   ║║║ ║║║║╠═╝
╚═╝ ╚╝  ╩ ╩ ╚═   ╩ ╩╚═╝╩ ╩╩

	An .evtx parser built for speed and forensic analysis.
`)
	fmt.Println("\nAvailable sub-commands 'dump' or 'version'")
	os.Exit(1)
}
