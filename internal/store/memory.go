package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// Memory keeps ledger state in process memory. Units of work run one at a
// time; the state lock is held for writing only while staged changes are
// applied, so reads never wait on a unit of work in progress.
type Memory struct {
	wmu      sync.Mutex
	mu       sync.RWMutex
	products map[uint64]model.Product
	balances map[model.Identity]model.Amount
	count    uint64
	sold     uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		products: make(map[uint64]model.Product),
		balances: make(map[model.Identity]model.Amount),
	}
}

func (s *Memory) View(ctx context.Context, fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s, held: true})
}

func (s *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.mu.RLock()
	count, sold := s.count, s.sold
	s.mu.RUnlock()
	tx := &memTx{
		s:        s,
		writable: true,
		products: make(map[uint64]model.Product),
		balances: make(map[model.Identity]model.Amount),
		count:    count,
		sold:     sold,
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.products {
		s.products[id] = p
	}
	for who, b := range tx.balances {
		s.balances[who] = b
	}
	s.count = tx.count
	s.sold = tx.sold
	return nil
}

func (s *Memory) Close() error { return nil }

// memTx stages writes in its own maps; reads fall through to the committed
// state, taking the read lock unless the caller already holds it.
type memTx struct {
	s        *Memory
	writable bool
	held     bool
	products map[uint64]model.Product
	balances map[model.Identity]model.Amount
	count    uint64
	sold     uint64
}

func (t *memTx) Count(context.Context) (uint64, error) {
	if t.writable {
		return t.count, nil
	}
	return t.s.count, nil
}

func (t *memTx) SoldCount(context.Context) (uint64, error) {
	if t.writable {
		return t.sold, nil
	}
	return t.s.sold, nil
}

func (t *memTx) Product(_ context.Context, id uint64) (model.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	t.rlock()
	p, ok := t.s.products[id]
	t.runlock()
	if !ok {
		return model.Product{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) Products(ctx context.Context, offset, limit int) ([]model.Product, error) {
	n, _ := t.Count(ctx)
	if offset < 0 {
		offset = 0
	}
	var out []model.Product
	for id := uint64(offset) + 1; id <= n; id++ {
		if limit > 0 && len(out) == limit {
			break
		}
		p, err := t.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *memTx) InsertProduct(_ context.Context, p model.Product) error {
	if !t.writable {
		return ErrReadOnly
	}
	if p.ID != t.count+1 {
		return ErrNotContiguous
	}
	t.products[p.ID] = p
	t.count++
	if p.IsPurchased {
		t.sold++
	}
	return nil
}

func (t *memTx) UpdateProduct(ctx context.Context, p model.Product) error {
	if !t.writable {
		return ErrReadOnly
	}
	old, err := t.Product(ctx, p.ID)
	if err != nil {
		return err
	}
	if !old.IsPurchased && p.IsPurchased {
		t.sold++
	}
	t.products[p.ID] = p
	return nil
}

func (t *memTx) Balance(_ context.Context, who model.Identity) (model.Amount, error) {
	if b, ok := t.balances[who]; ok {
		return b, nil
	}
	t.rlock()
	b, ok := t.s.balances[who]
	t.runlock()
	if ok {
		return b, nil
	}
	return decimal.Zero, nil
}

func (t *memTx) Credit(ctx context.Context, who model.Identity, amount model.Amount) error {
	if !t.writable {
		return ErrReadOnly
	}
	b, _ := t.Balance(ctx, who)
	t.balances[who] = b.Add(amount)
	return nil
}

func (t *memTx) rlock() {
	if !t.held {
		t.s.mu.RLock()
	}
}

func (t *memTx) runlock() {
	if !t.held {
		t.s.mu.RUnlock()
	}
}
