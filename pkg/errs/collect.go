// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package errs

import "go.uber.org/multierr"

// Collector accumulates per-message or per-segment errors during a
// scan or maintenance pass without aborting it, and reports the
// combined failure (if any) at the end.
type Collector struct {
	err error
}

// Add records err, if non-nil, as another failure in the pass.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.err = multierr.Append(c.err, err)
}

// Err returns the combined error, or nil if nothing was added.
func (c *Collector) Err() error { return c.err }

// Count returns how many errors have been recorded.
func (c *Collector) Count() int { return len(multierr.Errors(c.err)) }

// Errors returns the individual errors recorded, in the order added.
func (c *Collector) Errors() []error { return multierr.Errors(c.err) }
