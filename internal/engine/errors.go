package engine

import "errors"

// User-facing failures. Callers match them with errors.Is; the wrapped
// message carries the detail.
var ErrStalePhase = errors.New("stale interface")
var ErrPermission = errors.New("not permitted")
var ErrQuotaViolation = errors.New("quota violation")
var ErrUnavailable = errors.New("character unavailable")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrDraftFull = errors.New("draft is full")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvalidTeamSize = errors.New("invalid team size")
var ErrCatalogTooSmall = errors.New("catalog too small for roster")

// ErrInternal marks a recovered panic or a broken invariant.
var ErrInternal = errors.New("internal draft error")
