package cell

import "fmt"

// Meter charges every load and store against a fixed budget.
//
// It models the hosting environment's per-call resource budget: when the
// budget runs out mid-call the Meter returns ErrBudgetExhausted, the callback
// propagates it, and the enclosing Update discards every store made so far.
// A limit of zero means unlimited.
type Meter struct {
	inner Store
	limit uint64
	used  uint64
}

// NewMeter wraps s with a budget of limit cell operations.
func NewMeter(s Store, limit uint64) *Meter {
	return &Meter{inner: s, limit: limit}
}

// Used returns the number of operations charged so far.
func (m *Meter) Used() uint64 {
	return m.used
}

func (m *Meter) charge() error {
	m.used++
	if m.limit != 0 && m.used > m.limit {
		return fmt.Errorf("%d of %d operations: %w", m.used, m.limit, ErrBudgetExhausted)
	}
	return nil
}

// Load implements Store.
func (m *Meter) Load(addr Address) (Word, error) {
	if err := m.charge(); err != nil {
		return ZeroWord, err
	}
	return m.inner.Load(addr)
}

// Store implements Store.
func (m *Meter) Store(addr Address, w Word) error {
	if err := m.charge(); err != nil {
		return err
	}
	return m.inner.Store(addr, w)
}
