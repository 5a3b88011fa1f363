// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Corkboard packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. The
// dispatcher tests lean on these to observe worker results on the
// event channel without racing or hanging.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Corkboard-internal dependencies.
package testutil
