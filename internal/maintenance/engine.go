// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/metserv/wxstore/internal/archive"
	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dslock"
	"github.com/metserv/wxstore/internal/summarycache"
	"github.com/metserv/wxstore/internal/wxmetrics"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/log"
	"github.com/metserv/wxstore/pkg/scanner"
	"github.com/metserv/wxstore/pkg/segment"
)

// doNotPackFile is the name of the flag file maintenance checks for
// inside a dataset root before considering a segment for pack/delete
// /archive; a check run that reports any segment error creates it,
// and a clean check run removes it (updateDoNotPackFlag).
const doNotPackFile = ".do-not-pack"

// errNotProcessed marks a SegmentReport slot Run allocated but never
// got to classify because its run was canceled mid-pass.
var errNotProcessed = fmt.Errorf("maintenance: not processed (run canceled)")

// Engine runs a maintenance pass over one dataset: classify every
// segment, then invoke the agent appropriate to its state.
type Engine struct {
	Dataset *dsconfig.Dataset
	Store   *segment.Store
	Index   dsindex.Index
	Root    string

	// Archives, when non-nil, receives segments classified
	// StateNeedsArchive. A dataset with no archive_age configured
	// never produces that state, so Archives can stay nil for it.
	Archives *archive.Archives
	// Summaries, when non-nil, has its affected bucket invalidated
	// after any mutating action.
	Summaries *summarycache.Cache

	// Metrics, when non-nil, receives the per-run classification
	// counts and duration.
	Metrics *wxmetrics.Registry

	// Reporter, when non-nil, receives one structured Event per
	// segment per Run (spec.md §7), in addition to the plain log
	// lines Run always emits.
	Reporter *log.Reporter

	// Archived marks this Engine as scoped to one archive's own store
	// and index rather than the live dataset; inspect() reports every
	// segment as info.Archived so Classify produces the archived
	// branch of states (spec.md §4.5 "archive segments are classified
	// the same way against their own per-archive index").
	Archived bool

	// Concurrency bounds how many segments are processed in parallel.
	Concurrency int

	// Accurate enables the format-validating check pass (spec.md
	// §4.1/§6 "--accurate"): inspect decodes every member through its
	// format's Scanner instead of only comparing offsets and sizes.
	Accurate bool

	// RepackMode selects which of the two agents spec.md §4.5
	// describes runs over the classification: false is the "check"
	// agent (reindex/rescan/deindex only, never touches pack/archive
	// /delete); true is the "repack" agent (pack/archive/delete/
	// orphan-index/deindex, never rescans). A do-not-pack flag file
	// still blocks repack regardless of this field.
	RepackMode bool

	// Lock, when non-nil, is held for the duration of Run, excluding
	// any concurrent writer.Writer.Acquire against the same dataset
	// (spec.md §5). Left nil on the per-archive sub-engines Run
	// constructs internally, since those share the top-level Run's
	// hold on the lock rather than taking it again.
	Lock *dslock.WriterLock

	now func() time.Time
}

func New(ds *dsconfig.Dataset, store *segment.Store, index dsindex.Index, root string) *Engine {
	return &Engine{Dataset: ds, Store: store, Index: index, Root: root, Concurrency: 4, now: time.Now}
}

// SegmentReport is one segment's classification and the outcome of
// acting on it.
type SegmentReport struct {
	RelPath string
	State   State
	Action  string
	Err     error
}

// Run classifies and (unless dryRun) acts on every segment currently
// known to the index, plus every segment physically present that the
// index doesn't know about yet.
func (e *Engine) Run(ctx context.Context, dryRun bool) ([]SegmentReport, error) {
	if e.Lock != nil {
		e.Lock.Lock()
		defer e.Lock.Unlock()
	}
	start := time.Now()
	reports, err := e.run(ctx, dryRun)
	if e.Metrics != nil && !e.Archived {
		counts := make(map[string]int, len(reports))
		for _, r := range reports {
			counts[r.State.String()]++
		}
		e.Metrics.ObserveClassification(e.Dataset.Name, counts)
		e.Metrics.ObserveRun(e.Dataset.Name, time.Since(start))
	}
	return reports, err
}

func (e *Engine) run(ctx context.Context, dryRun bool) ([]SegmentReport, error) {
	indexed, err := e.Index.Segments(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance: list indexed segments: %w", err)
	}
	physical, err := e.walkPhysicalSegments()
	if err != nil {
		return nil, fmt.Errorf("maintenance: walk segments: %w", err)
	}

	all := mapset.NewSet[string]()
	for _, s := range indexed {
		all.Add(s)
	}
	for _, s := range physical {
		all.Add(s)
	}

	segs := all.ToSlice()
	// Every slot starts out marked unprocessed so a canceled run
	// never leaves a zero-value SegmentReport (State: StateOK, no
	// Err) that a caller could mistake for an actually-checked,
	// healthy segment.
	reports := make([]SegmentReport, len(segs))
	for i, relPath := range segs {
		reports[i] = SegmentReport{RelPath: relPath, Err: errNotProcessed}
	}

	sem := semaphore.NewWeighted(int64(e.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i, relPath := range segs {
		i, relPath := i, relPath
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			rep := e.processSegment(gctx, relPath, dryRun)
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	if acquireErr != nil {
		return reports, fmt.Errorf("maintenance: run canceled: %w", acquireErr)
	}

	if !dryRun && !e.Archived && !e.RepackMode {
		if err := e.updateDoNotPackFlag(reports); err != nil {
			return reports, fmt.Errorf("maintenance: update do-not-pack flag: %w", err)
		}
	}

	if e.Archives != nil {
		for _, ar := range e.Archives.List() {
			if ar.Store() == nil || ar.Index() == nil {
				continue // SummaryOnly/DirSummary archives carry no per-message state to classify
			}
			sub := &Engine{
				Dataset:     e.Dataset,
				Store:       ar.Store(),
				Index:       ar.Index(),
				Root:        ar.Root(),
				Archived:    true,
				Concurrency: e.Concurrency,
				Accurate:    e.Accurate,
				RepackMode:  e.RepackMode,
				Reporter:    e.Reporter,
				Summaries:   e.Summaries,
				now:         e.now,
			}
			subReports, err := sub.Run(ctx, dryRun)
			if err != nil {
				return reports, fmt.Errorf("maintenance: archive %s: %w", ar.Name, err)
			}
			reports = append(reports, subReports...)
		}
	}
	return reports, nil
}

func (e *Engine) processSegment(ctx context.Context, relPath string, dryRun bool) SegmentReport {
	info, err := e.inspect(ctx, relPath)
	if err != nil {
		return SegmentReport{RelPath: relPath, Err: err}
	}
	state := Classify(info)
	rep := SegmentReport{RelPath: relPath, State: state}

	if dryRun {
		rep.Action = "none (dry-run)"
		return rep
	}

	switch state {
	case StateOK, StateArchivedOK:
		rep.Action = "none"
	case StateNeedsPack:
		if e.RepackMode {
			rep.Action = "repack"
			rep.Err = e.repack(ctx, relPath)
		} else {
			rep.Action = "none (check-only)"
		}
	case StateNeedsIndex:
		// spec.md §4.5: the check agent indexes a freshly-landed
		// segment; the repack agent instead treats it as an orphan
		// and deletes it ("deletes needs-delete and orphan
		// needs-index"), never adding new rows itself.
		if e.RepackMode {
			rep.Action = "delete-orphan"
			rep.Err = e.delete(ctx, relPath)
		} else {
			rep.Action = "reindex"
			rep.Err = e.reindex(ctx, relPath)
		}
	case StateNeedsRescan, StateArchivedNeedsRescan:
		if e.RepackMode {
			rep.Action = "none (repack-only)"
		} else {
			rep.Action = "rescan"
			rep.Err = e.rescan(ctx, relPath)
		}
	case StateNeedsDelete:
		if e.RepackMode {
			rep.Action = "delete"
			rep.Err = e.delete(ctx, relPath)
		} else {
			rep.Action = "none (check-only)"
		}
	case StateNeedsArchive:
		if e.RepackMode {
			rep.Action = "archive"
			rep.Err = e.archiveSegment(ctx, relPath)
		} else {
			rep.Action = "none (check-only)"
		}
	case StateNeedsDeindex:
		rep.Action = "deindex"
		rep.Err = e.deindexArchived(ctx, relPath)
	}

	if rep.Err != nil {
		log.Errorf("maintenance: %s %s on %s/%s: %v", rep.Action, state, e.Dataset.Name, relPath, rep.Err)
	} else {
		log.Infof("maintenance: %s %s on %s/%s", rep.Action, state, e.Dataset.Name, relPath)
	}
	if e.Reporter != nil {
		e.Reporter.Report(log.Event{
			Dataset: e.Dataset.Name,
			Segment: relPath,
			Outcome: outcomeFor(rep.Action, rep.Err),
			Detail:  reportDetail(rep.Action, relPath, rep.Err),
		})
	}
	return rep
}

func outcomeFor(action string, err error) log.Outcome {
	switch {
	case err != nil:
		return log.OutcomeError
	case action == "none", action == "none (dry-run)", action == "none (check-only)", action == "none (repack-only)":
		return log.OutcomeOK
	case action == "delete", action == "delete-orphan":
		return log.OutcomeDeleted
	case action == "archive":
		return log.OutcomeArchived
	default:
		return log.OutcomeFixed
	}
}

// reportDetail matches the stable log-line phrasing spec.md §7
// requires for scripted assertions, e.g. "synop: rescanned 2007/07-07".
func reportDetail(action, relPath string, err error) string {
	if err != nil {
		return fmt.Sprintf("error on %s: %v", relPath, err)
	}
	switch action {
	case "repack":
		return fmt.Sprintf("repacked %s", relPath)
	case "reindex":
		return fmt.Sprintf("indexed %s", relPath)
	case "rescan":
		return fmt.Sprintf("rescanned %s", relPath)
	case "delete", "delete-orphan":
		return fmt.Sprintf("deleted %s", relPath)
	case "archive":
		return fmt.Sprintf("archived %s", relPath)
	case "deindex":
		return fmt.Sprintf("deindexed %s", relPath)
	default:
		return ""
	}
}

// updateDoNotPackFlag implements spec.md §4.5's "Creates a do-not-pack
// flag-file on any error so the next repack refuses to run until a
// clean check has passed": a check run (the only caller, guarded in
// run()) that reported any segment error leaves the flag set; a check
// run with no errors clears a flag a previous run left behind.
func (e *Engine) updateDoNotPackFlag(reports []SegmentReport) error {
	path := filepath.Join(e.Root, doNotPackFile)
	for _, r := range reports {
		if r.Err != nil {
			if err := os.WriteFile(path, []byte("set by check: "+r.Err.Error()+"\n"), 0o644); err != nil {
				return err
			}
			return nil
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *Engine) inspect(ctx context.Context, relPath string) (SegmentInfo, error) {
	info := SegmentInfo{RelPath: relPath, Archived: e.Archived}

	if _, err := os.Stat(filepath.Join(e.Root, doNotPackFile)); err == nil {
		info.DoNotPack = true
	}
	info.ArchiveAge = e.Dataset.ArchiveAge
	info.DeleteAge = e.Dataset.DeleteAge

	recs, err := e.Index.ScanSegment(ctx, relPath)
	if err != nil {
		return info, fmt.Errorf("scan index for %s: %w", relPath, err)
	}
	var latest time.Time
	for _, r := range recs {
		info.IndexedBytes += r.Size
		if r.Reftime.Begin.After(latest) {
			latest = r.Reftime.Begin
		}
	}
	if len(recs) > 0 {
		info.AgeDays = int(e.now().Sub(latest).Hours() / 24)
	}

	physPath, err := e.physicalPath(relPath)
	if err != nil {
		return info, fmt.Errorf("resolve segment path %s: %w", relPath, err)
	}
	if _, statErr := os.Stat(physPath); statErr != nil {
		if !os.IsNotExist(statErr) {
			return info, fmt.Errorf("stat segment %s: %w", relPath, statErr)
		}
		// The segment is gone from disk. Store.Open must not be
		// called here: both OpenFileLayout (os.O_CREATE) and
		// OpenDirLayout (MkdirAll) would silently recreate it empty,
		// masking the very condition being detected (spec.md §4.5
		// "in-index \ on-disk → needs-deindex").
		if len(recs) > 0 {
			info.IndexedOnly = true
			return info, nil
		}
		return info, fmt.Errorf("segment %s missing on disk with no index rows", relPath)
	}

	layout, err := e.Store.Open(relPath)
	if err != nil {
		return info, fmt.Errorf("open segment %s: %w", relPath, err)
	}
	info.PhysicalSize, err = layout.Size()
	if err != nil {
		return info, fmt.Errorf("stat segment %s: %w", relPath, err)
	}

	report, err := layout.Check(e.validator())
	if err != nil {
		return info, fmt.Errorf("check segment %s: %w", relPath, err)
	}
	info.Holes = len(report.Holes)
	info.Truncated = report.Truncated
	info.TrailingData = report.TrailingBytes > 0
	info.ValidationFailed = len(report.Invalid) > 0

	if len(recs) > 0 {
		base := e.sidecarBase(relPath)
		info.SidecarsMissing = !fileExists(base+".metadata") || !fileExists(base+".summary")
	}

	return info, nil
}

// validator returns the format-checking function Check should run over
// every member, or nil for a quick (offsets/sizes/holes only) pass.
func (e *Engine) validator() func([]byte) error {
	if !e.Accurate {
		return nil
	}
	format, err := e.Dataset.MessageFormat()
	if err != nil {
		return nil
	}
	s, err := scanner.Lookup(format)
	if err != nil {
		return nil
	}
	return s.ValidateBuffer
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// walkPhysicalSegments enumerates segments present on disk, branching
// on the dataset's configured layout: the file layout names a segment
// by its "<relPath>.<format>.gz" member, while the directory layout
// names it by a directory holding per-message ordinal-named files
// (pkg/segment.DirLayout) with no extension of its own — a directory
// is only recognized as a segment once it actually holds a member, so
// the plain date-bucket directories a daily/monthly/yearly step nests
// segments under are never mistaken for segments themselves.
func (e *Engine) walkPhysicalSegments() ([]string, error) {
	useDir := e.Dataset.LayoutOrDefault() == dsconfig.LayoutDir
	var out []string
	err := filepath.WalkDir(e.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == e.Root {
				return nil
			}
			if !e.Archived && (d.Name() == ".archive" || d.Name() == ".summaries") {
				return filepath.SkipDir
			}
			if useDir && isSegmentDir(path) {
				rel, relErr := filepath.Rel(e.Root, path)
				if relErr != nil {
					return relErr
				}
				out = append(out, rel)
				return filepath.SkipDir
			}
			return nil
		}
		if useDir {
			return nil
		}
		if filepath.Ext(path) != ".gz" {
			return nil
		}
		rel, err := filepath.Rel(e.Root, path)
		if err != nil {
			return err
		}
		out = append(out, trimSegmentExtension(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// physicalPath returns the on-disk path inspect must os.Stat before
// ever calling Store.Open, so a segment the writer/repack deleted (or
// that was never written) is detected as missing rather than
// recreated empty by OpenFileLayout's O_CREATE or OpenDirLayout's
// MkdirAll.
func (e *Engine) physicalPath(relPath string) (string, error) {
	abs := filepath.Join(e.Root, relPath)
	if e.Dataset.LayoutOrDefault() == dsconfig.LayoutDir {
		return abs, nil
	}
	format, err := e.Dataset.MessageFormat()
	if err != nil {
		return "", err
	}
	return abs + "." + format.Extension() + ".gz", nil
}

// isSegmentDir reports whether dir contains at least one member file
// named by DirLayout's zero-padded ordinal scheme, distinguishing an
// actual segment directory from a date-bucketing directory above it.
func isSegmentDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := strconv.ParseInt(e.Name(), 10, 64); err == nil {
			return true
		}
	}
	return false
}

func trimSegmentExtension(relPath string) string {
	for i := len(relPath) - 1; i >= 0; i-- {
		if relPath[i] == '.' {
			ext := relPath[i+1:]
			if ext == "gz" {
				return trimSegmentExtension(relPath[:i])
			}
			return relPath[:i]
		}
	}
	return relPath
}
