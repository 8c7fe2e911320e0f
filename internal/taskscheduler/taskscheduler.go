// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskscheduler drives the cron-scheduled half of spec.md
// §4.5: rather than an operator invoking the CLI by hand, a
// long-running process registers one recurring check/repack job per
// dataset and lets the maintenance engine run unattended.
package taskscheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/metserv/wxstore/internal/maintenance"
	"github.com/metserv/wxstore/pkg/log"
)

// Scheduler runs a maintenance.Engine per registered dataset on its
// own interval.
type Scheduler struct {
	sched gocron.Scheduler
}

// New creates an idle Scheduler; call Start to begin running jobs.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("taskscheduler: create scheduler: %w", err)
	}
	return &Scheduler{sched: s}, nil
}

// RegisterCheck schedules a non-repacking check pass (reindex/rescan/
// deindex only, spec.md §4.5 "check") at the given interval. A failed
// run sets the engine's do-not-pack flag via its own do-not-pack file
// handling; the scheduler only logs the outcome.
func (s *Scheduler) RegisterCheck(name string, eng *maintenance.Engine, interval time.Duration) error {
	return s.register(name, "check", eng, interval, false)
}

// RegisterRepack schedules a repack pass (pack/archive/delete/deindex,
// spec.md §4.5 "repack") at the given interval.
func (s *Scheduler) RegisterRepack(name string, eng *maintenance.Engine, interval time.Duration) error {
	return s.register(name, "repack", eng, interval, false)
}

func (s *Scheduler) register(name, kind string, eng *maintenance.Engine, interval time.Duration, dryRun bool) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			run := *eng
			run.RepackMode = kind == "repack"
			reports, err := run.Run(context.Background(), dryRun)
			if err != nil {
				log.Errorf("taskscheduler: %s %s failed: %v", name, kind, err)
				return
			}
			var acted int
			for _, r := range reports {
				if r.Action != "" && r.Action != "none" {
					acted++
				}
			}
			log.Infof("taskscheduler: %s %s done, %d/%d segments acted on", name, kind, acted, len(reports))
		}),
	)
	if err != nil {
		return fmt.Errorf("taskscheduler: register %s %s: %w", name, kind, err)
	}
	return nil
}

// Start begins running every registered job on its schedule.
func (s *Scheduler) Start() { s.sched.Start() }

// Shutdown stops the scheduler and waits for in-flight jobs to
// return.
func (s *Scheduler) Shutdown() error { return s.sched.Shutdown() }
