// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlbackend

import (
	"context"
	"time"

	"github.com/metserv/wxstore/pkg/log"
)

type hookTimingKey struct{}

// Before logs the statement and stashes a start time for After to
// compute elapsed duration from.
func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sqlbackend: %s %q", query, args)
	return context.WithValue(ctx, hookTimingKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(hookTimingKey{}).(time.Time); ok {
		log.Debugf("sqlbackend: took %s", time.Since(begin))
	}
	return ctx, nil
}
