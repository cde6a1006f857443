package infrastructure

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"nexus-settlement/internal/service/order/domain"
)

type memTxKey struct{}

// MemoryStore keeps every aggregate in process. Transactions are serialized and
// roll back through an undo log. Used for local runs and tests.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	orders   map[string]*domain.Order
	returns  map[string]*domain.ReturnRequest
	profiles map[string]*domain.Profile
	coupons  map[string]*domain.Coupon
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   map[string]*domain.Order{},
		returns:  map[string]*domain.ReturnRequest{},
		profiles: map[string]*domain.Profile{},
		coupons:  map[string]*domain.Coupon{},
	}
}

// memTx is the undo log of one transaction: the prior value of every key it
// wrote, nil when the key did not exist. Rollback restores only those keys, so
// writes made outside the transaction survive it.
type memTx struct {
	store    *MemoryStore
	orders   map[string]*domain.Order
	returns  map[string]*domain.ReturnRequest
	profiles map[string]*domain.Profile
}

func (s *MemoryStore) txFrom(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok && tx.store == s {
		return tx
	}
	return nil
}

// The save methods run with s.mu held. Only the first write to a key is logged.

func (tx *memTx) saveOrder(id string) {
	if tx == nil {
		return
	}
	if _, ok := tx.orders[id]; ok {
		return
	}
	var prev *domain.Order
	if o, ok := tx.store.orders[id]; ok {
		prev = cloneOrder(o)
	}
	tx.orders[id] = prev
}

func (tx *memTx) saveReturn(id string) {
	if tx == nil {
		return
	}
	if _, ok := tx.returns[id]; ok {
		return
	}
	var prev *domain.ReturnRequest
	if r, ok := tx.store.returns[id]; ok {
		c := *r
		prev = &c
	}
	tx.returns[id] = prev
}

func (tx *memTx) saveProfile(id string) {
	if tx == nil {
		return
	}
	if _, ok := tx.profiles[id]; ok {
		return
	}
	var prev *domain.Profile
	if p, ok := tx.store.profiles[id]; ok {
		c := *p
		prev = &c
	}
	tx.profiles[id] = prev
}

func (tx *memTx) rollback() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, prev := range tx.orders {
		if prev == nil {
			delete(s.orders, id)
		} else {
			s.orders[id] = prev
		}
	}
	for id, prev := range tx.returns {
		if prev == nil {
			delete(s.returns, id)
		} else {
			s.returns[id] = prev
		}
	}
	for id, prev := range tx.profiles {
		if prev == nil {
			delete(s.profiles, id)
		} else {
			s.profiles[id] = prev
		}
	}
}

// WithinTx implements domain.Transactor. Nested calls join the outer
// transaction; transactions are serialized against each other.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{
		store:    s,
		orders:   map[string]*domain.Order{},
		returns:  map[string]*domain.ReturnRequest{},
		profiles: map[string]*domain.Profile{},
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) Orders() *MemoryOrderRepository     { return &MemoryOrderRepository{s} }
func (s *MemoryStore) Returns() *MemoryReturnRepository   { return &MemoryReturnRepository{s} }
func (s *MemoryStore) Profiles() *MemoryProfileRepository { return &MemoryProfileRepository{s} }
func (s *MemoryStore) Coupons() *MemoryCouponRepository   { return &MemoryCouponRepository{s} }

// SeedProfile inserts or replaces a profile.
func (s *MemoryStore) SeedProfile(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = &p
}

// SeedCoupon inserts or replaces a coupon.
func (s *MemoryStore) SeedCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = domain.NormalizeCouponCode(c.Code)
	s.coupons[c.Code] = &c
}

// SeedOrder inserts an order with its items as is.
func (s *MemoryStore) SeedOrder(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Metadata = maps.Clone(o.Metadata)
	return &c
}

type MemoryOrderRepository struct{ s *MemoryStore }

func (r *MemoryOrderRepository) Create(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[o.ID]; ok {
		return errors.Wrapf(domain.ErrPersistence, "order %s already exists", o.ID)
	}
	if o.IdempotencyKey != "" {
		for _, existing := range r.s.orders {
			if existing.IdempotencyKey == o.IdempotencyKey {
				return errors.Wrapf(domain.ErrDuplicateSubmission, "key %s", o.IdempotencyKey)
			}
		}
	}
	r.s.txFrom(ctx).saveOrder(o.ID)
	c := cloneOrder(o)
	c.Items = nil
	r.s.orders[o.ID] = c
	return nil
}

func (r *MemoryOrderRepository) AddItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", orderID)
	}
	r.s.txFrom(ctx).saveOrder(orderID)
	for _, it := range items {
		it.OrderID = orderID
		o.Items = append(o.Items, it)
	}
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrderRepository) FindByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, o := range r.s.orders {
		if key != "" && o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, errors.Wrapf(domain.ErrOrderNotFound, "idempotency key %s", key)
}

func (r *MemoryOrderRepository) ListByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryOrderRepository) Update(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[o.ID]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", o.ID)
	}
	r.s.txFrom(ctx).saveOrder(o.ID)
	stored.Status = o.Status
	stored.TrackingNumber = o.TrackingNumber
	stored.TrackingURL = o.TrackingURL
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (r *MemoryOrderRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	tx := r.s.txFrom(ctx)
	tx.saveOrder(id)
	delete(r.s.orders, id)
	for rid, ret := range r.s.returns {
		if ret.OrderID == id {
			tx.saveReturn(rid)
			delete(r.s.returns, rid)
		}
	}
	return nil
}

type MemoryReturnRepository struct{ s *MemoryStore }

func (r *MemoryReturnRepository) Create(ctx context.Context, ret *domain.ReturnRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.returns {
		if existing.OrderID == ret.OrderID {
			return errors.Wrapf(domain.ErrDuplicateReturn, "order %s", ret.OrderID)
		}
	}
	r.s.txFrom(ctx).saveReturn(ret.ID)
	c := *ret
	r.s.returns[ret.ID] = &c
	return nil
}

func (r *MemoryReturnRepository) FindByID(_ context.Context, id string) (*domain.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ret, ok := r.s.returns[id]
	if !ok {
		return nil, domain.ErrReturnNotFound
	}
	c := *ret
	return &c, nil
}

func (r *MemoryReturnRepository) FindByOrderID(_ context.Context, orderID string) (*domain.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, ret := range r.s.returns {
		if ret.OrderID == orderID {
			c := *ret
			return &c, nil
		}
	}
	return nil, domain.ErrReturnNotFound
}

func (r *MemoryReturnRepository) UpdateStatus(ctx context.Context, ret *domain.ReturnRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.returns[ret.ID]
	if !ok {
		return domain.ErrReturnNotFound
	}
	r.s.txFrom(ctx).saveReturn(ret.ID)
	stored.Status = ret.Status
	stored.UpdatedAt = ret.UpdatedAt
	return nil
}

func (r *MemoryReturnRepository) ListByStatus(_ context.Context, status domain.ReturnStatus) ([]*domain.ReturnRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.ReturnRequest
	for _, ret := range r.s.returns {
		if ret.Status == status {
			c := *ret
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type MemoryProfileRepository struct{ s *MemoryStore }

func (r *MemoryProfileRepository) FindByID(_ context.Context, id string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrProfileNotFound, "user %s", id)
	}
	c := *p
	return &c, nil
}

func (r *MemoryProfileRepository) UpdatePoints(ctx context.Context, id string, points, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return errors.Wrapf(domain.ErrProfileNotFound, "user %s", id)
	}
	if p.Version != expectedVersion {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "profile %s version %d", id, expectedVersion)
	}
	r.s.txFrom(ctx).saveProfile(id)
	p.Points = points
	p.Version++
	return nil
}

type MemoryCouponRepository struct{ s *MemoryStore }

func (r *MemoryCouponRepository) FindByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return nil, errors.Wrapf(domain.ErrInvalidCoupon, "code %s", code)
	}
	cc := *c
	return &cc, nil
}
