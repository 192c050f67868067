// Package memory is the in-process reference implementation of the
// repository contracts. All writes are serialized by a single mutex shared by
// the three repositories, which is what makes Append's check-then-insert
// atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/repository"
)

type state struct {
	mu      sync.RWMutex
	now     func() time.Time
	units   map[string]*domain.ResourceUnit
	order   []string
	entries map[string]*domain.LedgerEntry
	seq     []string
	members map[string]*domain.Member
}

type Store struct {
	repository.ResourceRepository
	repository.LedgerRepository
	repository.MemberRepository
}

type resourceRepository struct{ s *state }
type ledgerRepository struct{ s *state }
type memberRepository struct{ s *state }

// NewStore returns an empty store. now stamps CreatedOn and a zero OpenedAt;
// nil means wall-clock UTC.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	st := &state{
		now:     now,
		units:   make(map[string]*domain.ResourceUnit),
		entries: make(map[string]*domain.LedgerEntry),
		members: make(map[string]*domain.Member),
	}
	return &Store{
		ResourceRepository: &resourceRepository{s: st},
		LedgerRepository:   &ledgerRepository{s: st},
		MemberRepository:   &memberRepository{s: st},
	}
}

// ------------------ Resource units ------------------

func (r *resourceRepository) Register(ctx context.Context, unit *domain.ResourceUnit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if _, ok := r.s.units[unit.ID]; ok {
		return domain.ErrDuplicate
	}
	if unit.CreatedOn.IsZero() {
		unit.CreatedOn = r.s.now()
	}
	stored := copyUnit(*unit)
	r.s.units[unit.ID] = &stored
	r.s.order = append(r.s.order, unit.ID)
	return nil
}

func (r *resourceRepository) GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.units[id]
	if !ok || u.DecommissionedOn != nil {
		return nil, domain.ErrNotFound
	}
	out := copyUnit(*u)
	return &out, nil
}

func (r *resourceRepository) List(ctx context.Context, filter domain.UnitFilter) ([]domain.ResourceUnit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var units []domain.ResourceUnit
	for _, id := range r.s.order {
		u := r.s.units[id]
		if u.DecommissionedOn != nil || !filter.Matches(*u) {
			continue
		}
		units = append(units, copyUnit(*u))
	}
	return units, nil
}

func (r *resourceRepository) Decommission(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[id]
	if !ok || u.DecommissionedOn != nil {
		return domain.ErrNotFound
	}
	if len(r.s.openForLocked(id)) > 0 {
		return domain.ErrUnavailable
	}
	u.DecommissionedOn = &at
	return nil
}

// ------------------ Ledger ------------------

func (r *ledgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.units[entry.UnitID]
	if !ok || u.DecommissionedOn != nil {
		return domain.ErrNotFound
	}
	if entry.OpenedAt.IsZero() {
		entry.OpenedAt = r.s.now()
	}

	open := r.s.openForLocked(entry.UnitID)
	if entry.Kind.TimeBoxed() {
		w := entry.Window()
		for _, e := range open {
			if e.Window().Overlaps(w) {
				return domain.ErrOverlap
			}
		}
	} else if len(open) > 0 {
		return domain.ErrUnavailable
	}

	entry.ID = uuid.NewString()
	entry.ClosedAt = nil
	stored := *entry
	r.s.entries[entry.ID] = &stored
	r.s.seq = append(r.s.seq, entry.ID)
	return nil
}

func (r *ledgerRepository) Close(ctx context.Context, entryID string, closedAt time.Time) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[entryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.ClosedAt != nil {
		return nil, domain.ErrAlreadyClosed
	}
	e.ClosedAt = &closedAt
	out := copyEntry(*e)
	return &out, nil
}

func (r *ledgerRepository) Extend(ctx context.Context, entryID string, extra time.Duration, limits repository.RenewalLimits) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[entryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.ClosedAt != nil {
		return nil, domain.ErrNotActive
	}
	if limits.MaxRenewals > 0 && e.Renewals >= limits.MaxRenewals {
		return nil, domain.ErrNotEligible
	}
	if !limits.OverdueAt.IsZero() && limits.OverdueAt.After(e.DueAt) {
		return nil, domain.ErrNotEligible
	}
	e.DueAt = e.DueAt.Add(extra)
	e.Renewals++
	out := copyEntry(*e)
	return &out, nil
}

func (r *ledgerRepository) Get(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entries[entryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyEntry(*e)
	return &out, nil
}

func (r *ledgerRepository) ActiveFor(ctx context.Context, unitID string) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	open := r.s.openForLocked(unitID)
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func (r *ledgerRepository) OpenFor(ctx context.Context, unitID string) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.openForLocked(unitID), nil
}

func (r *ledgerRepository) OpenForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error) {
	return r.s.collect(func(e *domain.LedgerEntry) bool {
		return e.HolderID == holderID && e.ClosedAt == nil
	}), nil
}

func (r *ledgerRepository) HistoryForUnit(ctx context.Context, unitID string) ([]domain.LedgerEntry, error) {
	return r.s.collect(func(e *domain.LedgerEntry) bool { return e.UnitID == unitID }), nil
}

func (r *ledgerRepository) HistoryForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error) {
	return r.s.collect(func(e *domain.LedgerEntry) bool { return e.HolderID == holderID }), nil
}

func (r *ledgerRepository) OpenCheckoutsDueBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error) {
	return r.s.collect(func(e *domain.LedgerEntry) bool {
		return e.ClosedAt == nil && e.Kind == domain.EntryKindCheckout && e.DueAt.Before(t)
	}), nil
}

func (r *ledgerRepository) OpenReservationsEndedBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error) {
	return r.s.collect(func(e *domain.LedgerEntry) bool {
		return e.ClosedAt == nil && e.Kind.TimeBoxed() && e.DueAt.Before(t)
	}), nil
}

func (st *state) collect(match func(*domain.LedgerEntry) bool) []domain.LedgerEntry {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, id := range st.seq {
		if e := st.entries[id]; match(e) {
			out = append(out, copyEntry(*e))
		}
	}
	sortOldestFirst(out)
	return out
}

func (st *state) openForLocked(unitID string) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, id := range st.seq {
		e := st.entries[id]
		if e.UnitID == unitID && e.ClosedAt == nil {
			out = append(out, copyEntry(*e))
		}
	}
	sortOldestFirst(out)
	return out
}

func sortOldestFirst(entries []domain.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OpenedAt.Before(entries[j].OpenedAt)
	})
}

// ------------------ Members ------------------

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.members {
		if strings.EqualFold(m.Email, member.Email) {
			return domain.ErrDuplicate
		}
	}
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if _, ok := r.s.members[member.ID]; ok {
		return domain.ErrDuplicate
	}
	if member.CreatedOn.IsZero() {
		member.CreatedOn = r.s.now()
	}
	stored := *member
	r.s.members[member.ID] = &stored
	return nil
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, m := range r.s.members {
		if strings.EqualFold(m.Email, email) {
			out := *m
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (r *memberRepository) UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.members[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	return nil
}

func copyUnit(u domain.ResourceUnit) domain.ResourceUnit {
	if u.Attributes != nil {
		attrs := make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			attrs[k] = v
		}
		u.Attributes = attrs
	}
	return u
}

func copyEntry(e domain.LedgerEntry) domain.LedgerEntry {
	if e.ClosedAt != nil {
		at := *e.ClosedAt
		e.ClosedAt = &at
	}
	return e
}
