// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package reftime

import (
	"fmt"
	"time"
)

// Step names the granularity at which a dataset buckets its segments
// on disk. A message's reftime is mapped to exactly one bucket per
// Step; every message whose reftime falls in the same bucket is
// written to the same segment.
type Step string

const (
	StepHourly  Step = "hourly"
	StepDaily   Step = "daily"
	StepWeekly  Step = "weekly"
	StepMonthly Step = "monthly"
	StepYearly  Step = "yearly"
)

func ParseStep(s string) (Step, error) {
	switch Step(s) {
	case StepHourly, StepDaily, StepWeekly, StepMonthly, StepYearly:
		return Step(s), nil
	default:
		return "", fmt.Errorf("reftime: unknown step %q", s)
	}
}

// RelativePath returns the segment's path, relative to the dataset
// root, for a message with reference instant t, before the format
// extension is appended by the caller.
func (s Step) RelativePath(t time.Time) string {
	t = t.UTC()
	switch s {
	case StepYearly:
		return fmt.Sprintf("%04d", t.Year())
	case StepMonthly:
		return fmt.Sprintf("%04d/%02d", t.Year(), t.Month())
	case StepWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d/%02d", year, week)
	case StepDaily:
		return fmt.Sprintf("%04d/%02d-%02d", t.Year(), t.Month(), t.Day())
	case StepHourly:
		return fmt.Sprintf("%04d/%02d-%02d/%02d", t.Year(), t.Month(), t.Day(), t.Hour())
	default:
		return fmt.Sprintf("%04d/%02d-%02d", t.Year(), t.Month(), t.Day())
	}
}

// BucketSpan returns the [begin, end) instants bracketing the bucket
// that t falls in.
func (s Step) BucketSpan(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	switch s {
	case StepYearly:
		begin := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return begin, begin.AddDate(1, 0, 0)
	case StepMonthly:
		begin := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return begin, begin.AddDate(0, 1, 0)
	case StepWeekly:
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		begin := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(wd - 1))
		return begin, begin.AddDate(0, 0, 7)
	case StepDaily:
		begin := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return begin, begin.AddDate(0, 0, 1)
	case StepHourly:
		begin := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
		return begin, begin.Add(time.Hour)
	default:
		begin := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return begin, begin.AddDate(0, 0, 1)
	}
}
