// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reftime models a message's reference time: either a single
// instant or a closed interval, both at second granularity, plus the
// operations datasets need on them: merging a collection into an
// enclosing interval and mapping an instant onto a segment's
// relative storage path under a configured step.
package reftime

import (
	"fmt"
	"time"

	"github.com/metserv/wxstore/pkg/wxtype"
)

// Time is a reference time attached to a message: either a point
// (Begin == End) or a closed interval.
type Time struct {
	Begin time.Time
	End   time.Time
}

// Point builds an instantaneous reference time.
func Point(t time.Time) Time { return Time{Begin: t, End: t} }

// Interval builds a closed [begin, end] reference time.
func Interval(begin, end time.Time) Time {
	if end.Before(begin) {
		begin, end = end, begin
	}
	return Time{Begin: begin, End: end}
}

// IsPoint reports whether the reference time collapses to an instant.
func (t Time) IsPoint() bool { return t.Begin.Equal(t.End) }

func (t Time) String() string {
	if t.IsPoint() {
		return t.Begin.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s to %s", t.Begin.UTC().Format(time.RFC3339), t.End.UTC().Format(time.RFC3339))
}

// FromItem converts a wxtype CodeReftime item into a Time.
func FromItem(it wxtype.Item) (Time, error) {
	switch v := it.(type) {
	case wxtype.ReftimePosition:
		t := time.Unix(v.Time, 0).UTC()
		return Point(t), nil
	case wxtype.ReftimePeriod:
		return Interval(time.Unix(v.Begin, 0).UTC(), time.Unix(v.End, 0).UTC()), nil
	default:
		return Time{}, fmt.Errorf("reftime: item %T is not a reftime", it)
	}
}

// ToItem converts a Time back into its canonical wxtype item.
func (t Time) ToItem() wxtype.Item {
	if t.IsPoint() {
		return wxtype.ReftimePosition{Time: t.Begin.Unix()}
	}
	return wxtype.ReftimePeriod{Begin: t.Begin.Unix(), End: t.End.Unix()}
}

// Merge returns the smallest interval enclosing every Time in ts. It
// panics if ts is empty; callers are expected to special-case no data.
func Merge(ts []Time) Time {
	if len(ts) == 0 {
		panic("reftime: Merge called with no reference times")
	}
	out := ts[0]
	for _, t := range ts[1:] {
		if t.Begin.Before(out.Begin) {
			out.Begin = t.Begin
		}
		if t.End.After(out.End) {
			out.End = t.End
		}
	}
	return out
}

// Contains reports whether other lies entirely within t's closed
// interval.
func (t Time) Contains(other Time) bool {
	return !other.Begin.Before(t.Begin) && !other.End.After(t.End)
}

// Overlaps reports whether the two closed intervals share any instant.
func (t Time) Overlaps(other Time) bool {
	return !t.End.Before(other.Begin) && !other.End.Before(t.Begin)
}
