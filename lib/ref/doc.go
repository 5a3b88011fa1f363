// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref defines validated identifier types for the Matrix
// identifiers Corkboard handles: room IDs, user IDs, event IDs, and
// event types.
//
// Raw identifier strings arrive from the homeserver (room creation,
// state reads, pagination) and from configuration. They are parsed
// into these types at the boundary; everything past the boundary works
// with values that are known to be structurally valid. The types are
// immutable: construct via the Parse functions, compare with ==, and
// check for the unset state with IsZero.
package ref
