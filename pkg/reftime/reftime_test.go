// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package reftime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointRoundTripsThroughItem(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Point(now)
	assert.True(t, p.IsPoint())

	item := p.ToItem()
	back, err := FromItem(item)
	require.NoError(t, err)
	assert.True(t, back.Begin.Equal(now))
	assert.True(t, back.IsPoint())
}

func TestIntervalNormalizesOrder(t *testing.T) {
	a := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	iv := Interval(a, b)
	assert.True(t, iv.Begin.Equal(b))
	assert.True(t, iv.End.Equal(a))
}

func TestMergeProducesEnclosingInterval(t *testing.T) {
	t1 := Point(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	t2 := Point(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	t3 := Interval(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC),
	)
	merged := Merge([]Time{t1, t2, t3})
	assert.True(t, merged.Begin.Equal(t1.Begin))
	assert.True(t, merged.End.Equal(t2.Begin))
}

func TestMergeOfEmptyPanics(t *testing.T) {
	assert.Panics(t, func() { Merge(nil) })
}

func TestOverlapsAndContains(t *testing.T) {
	outer := Interval(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	inner := Point(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.True(t, outer.Contains(inner))
	assert.True(t, outer.Overlaps(inner))

	disjoint := Point(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, outer.Overlaps(disjoint))
}

func TestStepRelativePath(t *testing.T) {
	when := time.Date(2024, 3, 7, 13, 45, 0, 0, time.UTC)

	cases := map[Step]string{
		StepYearly:  "2024",
		StepMonthly: "2024/03",
		StepDaily:   "2024/03-07",
		StepHourly:  "2024/03-07/13",
	}
	for step, want := range cases {
		assert.Equal(t, want, step.RelativePath(when), "step %s", step)
	}
}

func TestStepBucketSpanContainsSourceInstant(t *testing.T) {
	when := time.Date(2024, 3, 7, 13, 45, 30, 0, time.UTC)
	for _, step := range []Step{StepHourly, StepDaily, StepWeekly, StepMonthly, StepYearly} {
		begin, end := step.BucketSpan(when)
		assert.True(t, !when.Before(begin) && when.Before(end), "step %s span [%s,%s) should contain %s", step, begin, end, when)
	}
}

func TestParseStepRejectsUnknown(t *testing.T) {
	_, err := ParseStep("fortnightly")
	require.Error(t, err)
}
