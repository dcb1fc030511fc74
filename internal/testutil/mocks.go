package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/audit"
	"github.com/cassiomorais/marketplace/internal/domain/commission"
	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/outbox"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/cassiomorais/marketplace/internal/domain/seller"
	"github.com/google/uuid"
)

// The repository mocks store copies so callers never share state with the
// store, the same as a real database round trip.

// Snapshotter is a store that MockTransactionManager can roll back.
type Snapshotter interface {
	// Snapshot captures the current contents and returns a func that puts
	// them back.
	Snapshot() (restore func())
}

// --- Commission Repository Mock ---

// MockCommissionRepository is a mock implementation of commission.Repository.
type MockCommissionRepository struct {
	mu          sync.Mutex
	commissions map[uuid.UUID]*commission.Commission

	CreateFunc  func(ctx context.Context, c *commission.Commission) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*commission.Commission, error)
	UpdateFunc  func(ctx context.Context, c *commission.Commission) error
	TotalsFunc  func(ctx context.Context, sellerID *uuid.UUID) ([]commission.StatusTotals, error)
}

func NewMockCommissionRepository() *MockCommissionRepository {
	return &MockCommissionRepository{commissions: make(map[uuid.UUID]*commission.Commission)}
}

// AddCommission pre-populates the mock with a commission.
func (m *MockCommissionRepository) AddCommission(c *commission.Commission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commissions[c.ID] = cloneCommission(c)
}

// Commission returns the stored copy of a commission, or nil.
func (m *MockCommissionRepository) Commission(id uuid.UUID) *commission.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commissions[id]
	if !ok {
		return nil
	}
	return cloneCommission(c)
}

func (m *MockCommissionRepository) Create(ctx context.Context, c *commission.Commission) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.commissions {
		if existing.OrderID == c.OrderID && existing.LineItemID == c.LineItemID {
			return domainErrors.ErrDuplicateCommission
		}
	}
	m.commissions[c.ID] = cloneCommission(c)
	return nil
}

func (m *MockCommissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commissions[id]
	if !ok || c.DeletedAt != nil {
		return nil, domainErrors.ErrCommissionNotFound
	}
	return cloneCommission(c), nil
}

func (m *MockCommissionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*commission.Commission, error) {
	return m.GetByID(ctx, id)
}

func (m *MockCommissionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*commission.Commission, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.commissions[id]; ok && c.DeletedAt == nil {
			result = append(result, cloneCommission(c))
		}
	}
	return result, nil
}

func (m *MockCommissionRepository) GetManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]*commission.Commission, error) {
	return m.GetByIDs(ctx, ids)
}

func (m *MockCommissionRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*commission.Commission, len(m.commissions))
	for id, c := range m.commissions {
		saved[id] = cloneCommission(c)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.commissions = saved
	}
}

func (m *MockCommissionRepository) Update(ctx context.Context, c *commission.Commission) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commissions[c.ID]; !ok {
		return domainErrors.ErrCommissionNotFound
	}
	m.commissions[c.ID] = cloneCommission(c)
	return nil
}

func (m *MockCommissionRepository) List(ctx context.Context, filter commission.ListFilter) ([]*commission.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filter(filter), filter.Offset, filter.Limit), nil
}

func (m *MockCommissionRepository) Count(ctx context.Context, filter commission.ListFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(filter)), nil
}

func (m *MockCommissionRepository) ListByOrder(ctx context.Context, orderID string) ([]*commission.Commission, error) {
	return m.List(ctx, commission.ListFilter{OrderID: &orderID})
}

func (m *MockCommissionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*commission.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*commission.Commission
	for _, c := range m.sorted() {
		if c.Status == commission.StatusPending && c.CreatedAt.Before(cutoff) {
			result = append(result, cloneCommission(c))
		}
	}
	return page(result, 0, limit), nil
}

func (m *MockCommissionRepository) Totals(ctx context.Context, sellerID *uuid.UUID) ([]commission.StatusTotals, error) {
	if m.TotalsFunc != nil {
		return m.TotalsFunc(ctx, sellerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[commission.Status]*commission.StatusTotals)
	for _, c := range m.commissions {
		if c.DeletedAt != nil || (sellerID != nil && c.SellerID != *sellerID) {
			continue
		}
		b, ok := buckets[c.Status]
		if !ok {
			b = &commission.StatusTotals{Status: c.Status}
			buckets[c.Status] = b
		}
		b.Count++
		b.LineItemTotal += c.LineItemTotal
		b.CommissionAmount += c.CommissionAmount
		b.SellerPayout += c.SellerPayout
	}
	result := make([]commission.StatusTotals, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	return result, nil
}

func (m *MockCommissionRepository) filter(f commission.ListFilter) []*commission.Commission {
	var result []*commission.Commission
	for _, c := range m.sorted() {
		if c.DeletedAt != nil {
			continue
		}
		if f.SellerID != nil && c.SellerID != *f.SellerID {
			continue
		}
		if f.OrderID != nil && c.OrderID != *f.OrderID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		result = append(result, cloneCommission(c))
	}
	return result
}

func (m *MockCommissionRepository) sorted() []*commission.Commission {
	result := make([]*commission.Commission, 0, len(m.commissions))
	for _, c := range m.commissions {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// --- Payout Repository Mock ---

// MockPayoutRepository is a mock implementation of payout.Repository. Like
// the database it rejects a payout whose commissions are reserved by
// another non-terminal payout.
type MockPayoutRepository struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*payout.Payout

	CreateFunc  func(ctx context.Context, p *payout.Payout) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*payout.Payout, error)
	UpdateFunc  func(ctx context.Context, p *payout.Payout) error
	HistoryFunc func(ctx context.Context, sellerID uuid.UUID) (*payout.SellerHistory, error)
}

func NewMockPayoutRepository() *MockPayoutRepository {
	return &MockPayoutRepository{payouts: make(map[uuid.UUID]*payout.Payout)}
}

// AddPayout pre-populates the mock with a payout.
func (m *MockPayoutRepository) AddPayout(p *payout.Payout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.ID] = clonePayout(p)
}

// Payouts returns copies of every stored payout.
func (m *MockPayoutRepository) Payouts() []*payout.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payout.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		result = append(result, clonePayout(p))
	}
	return result
}

func (m *MockPayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.reservations()
	for _, id := range p.CommissionIDs {
		if _, ok := held[id]; ok {
			return domainErrors.ErrCommissionReserved
		}
	}
	m.payouts[p.ID] = clonePayout(p)
	return nil
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, domainErrors.ErrPayoutNotFound
	}
	return clonePayout(p), nil
}

func (m *MockPayoutRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return m.GetByID(ctx, id)
}

func (m *MockPayoutRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*payout.Payout, len(m.payouts))
	for id, p := range m.payouts {
		saved[id] = clonePayout(p)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.payouts = saved
	}
}

func (m *MockPayoutRepository) Update(ctx context.Context, p *payout.Payout) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; !ok {
		return domainErrors.ErrPayoutNotFound
	}
	m.payouts[p.ID] = clonePayout(p)
	return nil
}

func (m *MockPayoutRepository) List(ctx context.Context, filter payout.ListFilter) ([]*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filter(filter), filter.Offset, filter.Limit), nil
}

func (m *MockPayoutRepository) Count(ctx context.Context, filter payout.ListFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(filter)), nil
}

func (m *MockPayoutRepository) FindReservations(ctx context.Context, commissionIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.reservations()
	result := make(map[uuid.UUID]uuid.UUID)
	for _, id := range commissionIDs {
		if payoutID, ok := held[id]; ok {
			result[id] = payoutID
		}
	}
	return result, nil
}

func (m *MockPayoutRepository) ReservedCommissionIDs(ctx context.Context, sellerID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []uuid.UUID
	for _, p := range m.payouts {
		if p.SellerID == sellerID && p.HoldsReservation() {
			result = append(result, p.CommissionIDs...)
		}
	}
	return result, nil
}

func (m *MockPayoutRepository) History(ctx context.Context, sellerID uuid.UUID) (*payout.SellerHistory, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, sellerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &payout.SellerHistory{}
	for _, p := range m.payouts {
		if p.SellerID != sellerID {
			continue
		}
		if p.Status == payout.StatusFailed {
			h.FailedCount++
		}
		if p.Status != payout.StatusCancelled && (h.LastRequestedAt == nil || p.RequestedAt.After(*h.LastRequestedAt)) {
			t := p.RequestedAt
			h.LastRequestedAt = &t
		}
	}
	return h, nil
}

func (m *MockPayoutRepository) ListProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payout.Payout
	for _, p := range m.sorted() {
		if p.Status == payout.StatusProcessing && p.ProcessingAt != nil && p.ProcessingAt.Before(cutoff) {
			result = append(result, clonePayout(p))
		}
	}
	return page(result, 0, limit), nil
}

func (m *MockPayoutRepository) Totals(ctx context.Context, sellerID *uuid.UUID) ([]payout.StatusTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[payout.Status]*payout.StatusTotals)
	for _, p := range m.payouts {
		if sellerID != nil && p.SellerID != *sellerID {
			continue
		}
		b, ok := buckets[p.Status]
		if !ok {
			b = &payout.StatusTotals{Status: p.Status}
			buckets[p.Status] = b
		}
		b.Count++
		b.Amount += p.Amount
	}
	result := make([]payout.StatusTotals, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	return result, nil
}

func (m *MockPayoutRepository) reservations() map[uuid.UUID]uuid.UUID {
	held := make(map[uuid.UUID]uuid.UUID)
	for _, p := range m.payouts {
		if !p.HoldsReservation() {
			continue
		}
		for _, id := range p.CommissionIDs {
			held[id] = p.ID
		}
	}
	return held
}

func (m *MockPayoutRepository) filter(f payout.ListFilter) []*payout.Payout {
	var result []*payout.Payout
	for _, p := range m.sorted() {
		if f.SellerID != nil && p.SellerID != *f.SellerID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.ReconciliationRequired != nil && p.ReconciliationRequired != *f.ReconciliationRequired {
			continue
		}
		result = append(result, clonePayout(p))
	}
	return result
}

func (m *MockPayoutRepository) sorted() []*payout.Payout {
	result := make([]*payout.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// --- Seller Repository Mock ---

// MockSellerRepository is a mock implementation of seller.Repository.
type MockSellerRepository struct {
	mu      sync.Mutex
	sellers map[uuid.UUID]*seller.Seller

	CreateFunc  func(ctx context.Context, s *seller.Seller) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*seller.Seller, error)
}

func NewMockSellerRepository() *MockSellerRepository {
	return &MockSellerRepository{sellers: make(map[uuid.UUID]*seller.Seller)}
}

// AddSeller pre-populates the mock with a seller.
func (m *MockSellerRepository) AddSeller(s *seller.Seller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sellers[s.ID] = cloneSeller(s)
}

func (m *MockSellerRepository) Create(ctx context.Context, s *seller.Seller) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sellers {
		if existing.CustomerID == s.CustomerID {
			return domainErrors.ErrSellerAlreadyRegistered
		}
	}
	m.sellers[s.ID] = cloneSeller(s)
	return nil
}

func (m *MockSellerRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*seller.Seller, len(m.sellers))
	for id, s := range m.sellers {
		saved[id] = cloneSeller(s)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.sellers = saved
	}
}

func (m *MockSellerRepository) GetByID(ctx context.Context, id uuid.UUID) (*seller.Seller, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sellers[id]
	if !ok {
		return nil, domainErrors.ErrSellerNotFound
	}
	return cloneSeller(s), nil
}

func (m *MockSellerRepository) GetByCustomerID(ctx context.Context, customerID string) (*seller.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sellers {
		if s.CustomerID == customerID {
			return cloneSeller(s), nil
		}
	}
	return nil, domainErrors.ErrSellerNotFound
}

func (m *MockSellerRepository) Update(ctx context.Context, s *seller.Seller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sellers[s.ID]; !ok {
		return domainErrors.ErrSellerNotFound
	}
	m.sellers[s.ID] = cloneSeller(s)
	return nil
}

func (m *MockSellerRepository) List(ctx context.Context, filter seller.ListFilter) ([]*seller.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.filter(filter), filter.Offset, filter.Limit), nil
}

func (m *MockSellerRepository) Count(ctx context.Context, filter seller.ListFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(filter)), nil
}

func (m *MockSellerRepository) filter(f seller.ListFilter) []*seller.Seller {
	result := make([]*seller.Seller, 0, len(m.sellers))
	for _, s := range m.sellers {
		if f.VerificationStatus != nil && s.VerificationStatus != *f.VerificationStatus {
			continue
		}
		if f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		result = append(result, cloneSeller(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc func(ctx context.Context, entry *outbox.Entry) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Entries returns every inserted entry.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*outbox.Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make([]*outbox.Entry, len(m.entries))
	for i, e := range m.entries {
		cp := *e
		saved[i] = &cp
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = saved
	}
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			result = append(result, e)
		}
	}
	return page(result, 0, limit), nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(id); e != nil {
		e.MarkPublished(time.Now())
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(id); e != nil {
		e.RecordFailure()
	}
	return nil
}

func (m *MockOutboxRepository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var purged int64
	for _, e := range m.entries {
		if e.Status == outbox.StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

func (m *MockOutboxRepository) find(id uuid.UUID) *outbox.Entry {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// --- Audit Recorder Mock ---

// MockAuditRecorder is a mock implementation of audit.Recorder.
type MockAuditRecorder struct {
	mu     sync.Mutex
	events []*audit.Event

	RecordFunc func(ctx context.Context, event *audit.Event) error
}

func NewMockAuditRecorder() *MockAuditRecorder {
	return &MockAuditRecorder{}
}

func (m *MockAuditRecorder) Record(ctx context.Context, event *audit.Event) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns recorded events, optionally only those with action.
func (m *MockAuditRecorder) Events(action ...string) []*audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(action) == 0 {
		result := make([]*audit.Event, len(m.events))
		copy(result, m.events)
		return result
	}
	var result []*audit.Event
	for _, e := range m.events {
		if e.Action == action[0] {
			result = append(result, e)
		}
	}
	return result
}

// ListByEntity returns the events of one entity, newest first.
func (m *MockAuditRecorder) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*audit.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			result = append(result, e)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- Transaction Manager Mock ---

type mockTxKey struct{}

// MockTransactionManager is a mock implementation of TransactionManager.
// Transactions run one at a time. When fn fails every store passed to
// NewMockTransactionManager is put back the way it was before fn ran.
// A call made inside a transaction joins it.
type MockTransactionManager struct {
	mu     sync.Mutex
	stores []Snapshotter
}

func NewMockTransactionManager(stores ...Snapshotter) *MockTransactionManager {
	return &MockTransactionManager{stores: stores}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(mockTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.Snapshot())
	}
	if err := fn(context.WithValue(ctx, mockTxKey{}, m)); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// --- helpers ---

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneCommission(c *commission.Commission) *commission.Commission {
	cp := *c
	cp.Metadata = cloneMap(c.Metadata)
	return &cp
}

func clonePayout(p *payout.Payout) *payout.Payout {
	cp := *p
	cp.CommissionIDs = append([]uuid.UUID(nil), p.CommissionIDs...)
	cp.Metadata = cloneMap(p.Metadata)
	cp.PaymentMetadata = cloneMap(p.PaymentMetadata)
	return &cp
}

func cloneSeller(s *seller.Seller) *seller.Seller {
	cp := *s
	cp.Metadata = cloneMap(s.Metadata)
	return &cp
}
