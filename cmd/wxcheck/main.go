// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command wxcheck is the thin CLI wrapper spec.md §6 describes: it
// opens one or more dataset configurations and dispatches straight to
// the maintenance engine and reader, with no logic of its own beyond
// flag parsing and exit-code bookkeeping.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/metserv/wxstore/internal/wxmetrics"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/log"
	"github.com/metserv/wxstore/wxstore"
)

var (
	flagFix, flagAccurate, flagRepack, flagRemoveAll, flagScanTest bool
	flagRemove, flagRestrict, flagLogLevel                         string
	flagScanTestN                                                  int
	flagConfigPaths                                                configPaths
)

// configPaths collects repeated "-C <path>" flags, each naming either
// a single dataset config file or a directory of them.
type configPaths []string

func (c *configPaths) String() string { return strings.Join(*c, ",") }

func (c *configPaths) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func cliInit() {
	flag.BoolVar(&flagFix, "fix", false, "Act on the classification instead of only reporting it")
	flag.BoolVar(&flagAccurate, "accurate", false, "Run the format validator over every message instead of a quick offset/size check")
	flag.BoolVar(&flagRepack, "repack", false, "Run the repack agent (pack/archive/delete/deindex) instead of the check agent (reindex/rescan/deindex)")
	flag.BoolVar(&flagRemoveAll, "remove-all", false, "Delete every segment the live index of the restricted datasets knows about; archived segments are not touched")
	flag.StringVar(&flagRemove, "remove", "", "Delete the segments listed, one relative path per line, in `metafile`")
	flag.BoolVar(&flagScanTest, "scantest", false, "Run the scan_test diagnostic, sampling one message per segment")
	flag.IntVar(&flagScanTestN, "scantest-n", 0, "Message index scan_test samples from each segment")
	flag.StringVar(&flagRestrict, "restrict", "", "Comma-separated `names` limiting the run to those datasets (default: all)")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Var(&flagConfigPaths, "C", "Dataset `config` file or directory; repeatable")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)

	if len(flagConfigPaths) == 0 {
		log.Error("wxcheck: at least one -C <config> is required")
		os.Exit(1)
	}

	cfgs, err := loadConfigs(flagConfigPaths)
	if err != nil {
		log.Errorf("wxcheck: %v", err)
		os.Exit(1)
	}

	metrics := wxmetrics.New()
	reg, skipped := wxstore.OpenAll(cfgs, metrics)
	for _, s := range skipped {
		log.Warnf("wxcheck: %v", s)
	}
	defer func() {
		for _, err := range reg.Close() {
			log.Errorf("wxcheck: %v", err)
		}
	}()

	failed := false
	ctx := context.Background()

	for _, name := range reg.Restrict(splitNonEmpty(flagRestrict)) {
		ds, _ := reg.Get(name)
		if err := runDataset(ctx, ds); err != nil {
			log.Errorf("wxcheck: %s: %v", name, err)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func runDataset(ctx context.Context, ds *wxstore.Dataset) error {
	ds.Engine.Accurate = flagAccurate
	ds.Engine.RepackMode = flagRepack

	if flagRemoveAll {
		return removeAllSegments(ctx, ds)
	}
	if flagRemove != "" {
		return removeListed(ctx, ds, flagRemove)
	}
	if flagScanTest {
		return runScanTest(ctx, ds)
	}

	reports, err := ds.Engine.Run(ctx, !flagFix)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	for _, r := range reports {
		if r.Err != nil {
			log.Errorf("wxcheck: %s %s: %s: %v", ds.Config.Name, r.Action, r.RelPath, r.Err)
		}
	}
	if ds.Engine.Reporter != nil && ds.Engine.Reporter.HasErrors() {
		return fmt.Errorf("%d segment(s) reported an error", ds.Engine.Reporter.Count(log.OutcomeError))
	}
	return nil
}

// removeAllSegments deletes every segment a dataset's live index
// currently knows about, per "check --remove-all". Segments already
// moved into an archive are not removed.
func removeAllSegments(ctx context.Context, ds *wxstore.Dataset) error {
	segs, err := ds.Engine.Index.Segments(ctx)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}
	var failed int
	for _, relPath := range segs {
		if err := ds.Engine.RemoveSegment(ctx, relPath); err != nil {
			log.Errorf("wxcheck: %s: remove %s: %v", ds.Config.Name, relPath, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d segment(s) failed to remove", failed)
	}
	return nil
}

// removeListed deletes each relative segment path named, one per
// line, in metafile, per "check --remove=<metafile>".
func removeListed(ctx context.Context, ds *wxstore.Dataset, metafile string) error {
	raw, err := os.ReadFile(metafile)
	if err != nil {
		return fmt.Errorf("read %s: %w", metafile, err)
	}
	var failed int
	for _, line := range strings.Split(string(raw), "\n") {
		relPath := strings.TrimSpace(line)
		if relPath == "" {
			continue
		}
		if err := ds.Engine.RemoveSegment(ctx, relPath); err != nil {
			log.Errorf("wxcheck: %s: remove %s: %v", ds.Config.Name, relPath, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d segment(s) failed to remove", failed)
	}
	return nil
}

func runScanTest(ctx context.Context, ds *wxstore.Dataset) error {
	fails, err := ds.Reader.ScanTestNth(ctx, flagScanTestN)
	if err != nil {
		return fmt.Errorf("scantest: %w", err)
	}
	for _, f := range fails {
		log.Warnf("wxcheck: %s: scantest: %s", ds.Config.Name, f.Error())
	}
	if len(fails) > 0 {
		return fmt.Errorf("scantest found %d problem(s)", len(fails))
	}
	return nil
}

// loadConfigs resolves each "-C" argument (a single dataset config
// file or a directory of them) into its dataset configurations;
// wxstore.OpenAll then takes care of opening (or skipping) each one.
func loadConfigs(paths []string) ([]*dsconfig.Dataset, error) {
	var out []*dsconfig.Dataset
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			cfgs, err := dsconfig.LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, cfgs...)
			continue
		}
		cfg, err := dsconfig.Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
