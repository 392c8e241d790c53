// Package revocation holds ledgers of session tokens that were invalidated
// before their natural expiry.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local ledger. Lookups and inserts do not contend on a
// shared lock, so validations are not serialised behind revocations.
type Memory struct {
	entries sync.Map // token -> time.Time
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	m.entries.LoadOrStore(token, expiresAt)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, token string) (bool, error) {
	_, ok := m.entries.Load(token)
	return ok, nil
}

// Purge drops entries whose expiry is at or before now.
func (m *Memory) Purge(_ context.Context, now time.Time) (int, error) {
	removed := 0
	m.entries.Range(func(key, value any) bool {
		if exp, ok := value.(time.Time); ok && !exp.After(now) {
			if m.entries.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed, nil
}

func (m *Memory) Len(context.Context) (int, error) {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}
