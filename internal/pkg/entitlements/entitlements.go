// Package entitlements answers whether a signed-in user may use the paid app.
package entitlements

import (
	"context"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/rs/zerolog/log"
)

// Decision sources.
const (
	SourceStore        = "store"
	SourceSessionClaim = "session_claim"
	SourceMirror       = "mirror"
	SourceNone         = "none"
)

// StoreChecker is the authoritative subscription store.
type StoreChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// MirrorReader reads the identity metadata copy.
type MirrorReader interface {
	ReadMirror(ctx context.Context, userID string) (*billing.MirrorEntry, error)
}

// Decision is the outcome of one access check.
type Decision struct {
	Allowed bool
	Source  string
}

// Checker consults the store first and falls back to the mirror when the
// store says no or is unavailable. A webhook that reached the mirror but not
// yet the store still lets a paying user in; when both fail the answer is deny.
type Checker struct {
	store         StoreChecker
	mirror        MirrorReader
	mirrorTimeout time.Duration
}

func NewChecker(store StoreChecker, mirror MirrorReader, mirrorTimeout time.Duration) *Checker {
	if mirrorTimeout <= 0 {
		mirrorTimeout = 2 * time.Second
	}
	return &Checker{store: store, mirror: mirror, mirrorTimeout: mirrorTimeout}
}

// Check decides access for userID. sessionMirror is the copy embedded in the
// session token; when present it replaces the mirror API call.
func (c *Checker) Check(ctx context.Context, userID string, sessionMirror *billing.MirrorEntry) Decision {
	if userID == "" {
		return Decision{Source: SourceNone}
	}

	active, err := c.store.IsActive(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("subscription store unavailable, falling back to mirror")
	} else if active {
		return Decision{Allowed: true, Source: SourceStore}
	}

	if sessionMirror != nil {
		return Decision{Allowed: sessionMirror.IsEntitled(), Source: SourceSessionClaim}
	}
	if c.mirror == nil {
		return Decision{Source: SourceStore}
	}

	mctx, cancel := context.WithTimeout(ctx, c.mirrorTimeout)
	defer cancel()
	entry, err := c.mirror.ReadMirror(mctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("subscription mirror unavailable, denying access")
		return Decision{Source: SourceNone}
	}
	return Decision{Allowed: entry.IsEntitled(), Source: SourceMirror}
}
