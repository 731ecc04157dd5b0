// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ovsdb

import "time"

// Req represents an OVSDB request modifier
//
// This struct is used to apply request-specific options via functional modifiers.
// Operation parameters (database, operations) are passed directly to methods.
//
// Example:
//
//	// Transact with a custom timeout
//	res, err := client.Transact(ctx, "Open_vSwitch", ops,
//	    ovsdb.Timeout(30*time.Second))
type Req struct {
	// Timeout is the request-specific timeout
	// Overrides client default timeout if set
	Timeout time.Duration
}

// newReq applies modifiers on top of the client default timeout
func newReq(defaultTimeout time.Duration, mods []func(*Req)) *Req {
	req := &Req{Timeout: defaultTimeout}
	for _, mod := range mods {
		if mod != nil {
			mod(req)
		}
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}
	return req
}
