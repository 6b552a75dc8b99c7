package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/stretchr/testify/assert"
)

type stubStore struct {
	active bool
	err    error
}

func (s stubStore) IsActive(context.Context, string) (bool, error) { return s.active, s.err }

type stubMirror struct {
	entry *billing.MirrorEntry
	err   error
	calls *int
	delay time.Duration
}

func (m stubMirror) ReadMirror(ctx context.Context, _ string) (*billing.MirrorEntry, error) {
	if m.calls != nil {
		*m.calls++
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.entry, m.err
}

var (
	activeEntry    = &billing.MirrorEntry{Status: "active", Plan: "monthly"}
	cancelledEntry = &billing.MirrorEntry{Status: "cancelled", Plan: "monthly"}
)

func TestCheck(t *testing.T) {
	storeDown := errors.New("db down")
	mirrorDown := errors.New("identity api down")

	tests := []struct {
		name    string
		store   stubStore
		mirror  stubMirror
		session *billing.MirrorEntry
		want    Decision
	}{
		{name: "store active", store: stubStore{active: true}, mirror: stubMirror{err: mirrorDown}, want: Decision{Allowed: true, Source: SourceStore}},
		{name: "store inactive, mirror active", store: stubStore{}, mirror: stubMirror{entry: activeEntry}, want: Decision{Allowed: true, Source: SourceMirror}},
		{name: "store inactive, mirror cancelled", store: stubStore{}, mirror: stubMirror{entry: cancelledEntry}, want: Decision{Allowed: false, Source: SourceMirror}},
		{name: "store down, mirror active", store: stubStore{err: storeDown}, mirror: stubMirror{entry: activeEntry}, want: Decision{Allowed: true, Source: SourceMirror}},
		{name: "store down, mirror empty", store: stubStore{err: storeDown}, mirror: stubMirror{}, want: Decision{Allowed: false, Source: SourceMirror}},
		{name: "both down", store: stubStore{err: storeDown}, mirror: stubMirror{err: mirrorDown}, want: Decision{Allowed: false, Source: SourceNone}},
		{name: "session claim wins over mirror call", store: stubStore{}, mirror: stubMirror{err: mirrorDown}, session: activeEntry, want: Decision{Allowed: true, Source: SourceSessionClaim}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.store, tt.mirror, time.Second)
			assert.Equal(t, tt.want, c.Check(context.Background(), "user_1", tt.session))
		})
	}
}

func TestCheck_SkipsMirrorWhenStoreSaysYes(t *testing.T) {
	calls := 0
	c := NewChecker(stubStore{active: true}, stubMirror{calls: &calls}, time.Second)
	assert.True(t, c.Check(context.Background(), "user_1", nil).Allowed)
	assert.Equal(t, 0, calls)
}

func TestCheck_MirrorTimeoutDenies(t *testing.T) {
	c := NewChecker(stubStore{err: errors.New("db down")}, stubMirror{entry: activeEntry, delay: time.Second}, 10*time.Millisecond)
	d := c.Check(context.Background(), "user_1", nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceNone, d.Source)
}

func TestCheck_AnonymousAndNoMirror(t *testing.T) {
	c := NewChecker(stubStore{active: true}, nil, 0)
	assert.Equal(t, Decision{Source: SourceNone}, c.Check(context.Background(), "", nil))
	assert.Equal(t, Decision{Source: SourceStore}, NewChecker(stubStore{}, nil, 0).Check(context.Background(), "user_1", nil))
}
