package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service defines inventory operations.
type Service interface {
	ListParts(ctx context.Context, q PartQuery) (Page[SparePart], error)
	GetPart(ctx context.Context, id string) (SparePart, error)
	CreatePart(ctx context.Context, in PartInput) (SparePart, error)
	UpdatePart(ctx context.Context, id string, in PartInput) (SparePart, error)
	DeletePart(ctx context.Context, id string) error

	ListSuppliers(ctx context.Context, name string) ([]Supplier, error)
	GetSupplier(ctx context.Context, id string) (Supplier, error)
	CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error)
	UpdateSupplier(ctx context.Context, id string, in SupplierInput) (Supplier, error)
	// DeleteSupplier fails with ErrReferentialConflict while spare parts reference it.
	DeleteSupplier(ctx context.Context, id string) error
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu        sync.RWMutex
	parts     map[string]SparePart
	suppliers map[string]Supplier
	now       func() time.Time
}

// NewInMemory creates an empty inventory.
func NewInMemory() *InMemory {
	return &InMemory{
		parts:     make(map[string]SparePart),
		suppliers: make(map[string]Supplier),
		now:       time.Now,
	}
}

func (s *InMemory) ListParts(ctx context.Context, q PartQuery) (Page[SparePart], error) {
	q, err := q.Normalize()
	if err != nil {
		return Page[SparePart]{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []SparePart
	for _, p := range s.parts {
		if q.Name != "" && !strings.Contains(p.Name, q.Name) {
			continue
		}
		if q.SupplierID != "" && p.SupplierID != q.SupplierID {
			continue
		}
		p.SupplierName = s.suppliers[p.SupplierID].Name
		matched = append(matched, p)
	}
	sort.SliceStable(matched, partLess(matched, q))

	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return newPage(matched[start:end], total, q.Page, q.PageSize), nil
}

func partLess(parts []SparePart, q PartQuery) func(i, j int) bool {
	cmp := func(a, b SparePart) int {
		switch q.SortBy {
		case SortByName:
			return strings.Compare(a.Name, b.Name)
		case SortByPrice:
			return compareInt64(a.Price, b.Price)
		case SortByQuantity:
			return compareInt64(int64(a.Quantity), int64(b.Quantity))
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	return func(i, j int) bool {
		c := cmp(parts[i], parts[j])
		if c == 0 {
			return parts[i].ID < parts[j].ID
		}
		if q.Desc && q.SortBy != "" {
			return c > 0
		}
		return c < 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s *InMemory) GetPart(ctx context.Context, id string) (SparePart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[id]
	if !ok {
		return SparePart{}, ErrNotFound
	}
	p.SupplierName = s.suppliers[p.SupplierID].Name
	return p, nil
}

func (s *InMemory) CreatePart(ctx context.Context, in PartInput) (SparePart, error) {
	in, err := in.Normalize()
	if err != nil {
		return SparePart{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkPartLocked("", in); err != nil {
		return SparePart{}, err
	}
	p := SparePart{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Quantity:   in.Quantity,
		Price:      in.Price,
		SupplierID: in.SupplierID,
		CreatedAt:  s.now().UTC(),
	}
	s.parts[p.ID] = p
	p.SupplierName = s.suppliers[p.SupplierID].Name
	return p, nil
}

func (s *InMemory) UpdatePart(ctx context.Context, id string, in PartInput) (SparePart, error) {
	in, err := in.Normalize()
	if err != nil {
		return SparePart{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[id]
	if !ok {
		return SparePart{}, ErrNotFound
	}
	if err := s.checkPartLocked(id, in); err != nil {
		return SparePart{}, err
	}
	p.Name, p.Quantity, p.Price, p.SupplierID = in.Name, in.Quantity, in.Price, in.SupplierID
	s.parts[id] = p
	p.SupplierName = s.suppliers[p.SupplierID].Name
	return p, nil
}

func (s *InMemory) checkPartLocked(selfID string, in PartInput) error {
	if _, ok := s.suppliers[in.SupplierID]; !ok {
		return errSupplierMissing(in.SupplierID)
	}
	for id, p := range s.parts {
		if id != selfID && p.Name == in.Name {
			return fmt.Errorf("%w: spare part name already exists", ErrConflict)
		}
	}
	return nil
}

func (s *InMemory) DeletePart(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parts[id]; !ok {
		return ErrNotFound
	}
	delete(s.parts, id)
	return nil
}

func (s *InMemory) ListSuppliers(ctx context.Context, name string) ([]Supplier, error) {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		if name != "" && !strings.Contains(sup.Name, name) {
			continue
		}
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *InMemory) GetSupplier(ctx context.Context, id string) (Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return sup, nil
}

func (s *InMemory) CreateSupplier(ctx context.Context, in SupplierInput) (Supplier, error) {
	in, err := in.Normalize()
	if err != nil {
		return Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sup := Supplier{
		ID:           uuid.NewString(),
		Name:         in.Name,
		ContactEmail: in.ContactEmail,
		Phone:        in.Phone,
		CreatedAt:    s.now().UTC(),
	}
	s.suppliers[sup.ID] = sup
	return sup, nil
}

func (s *InMemory) UpdateSupplier(ctx context.Context, id string, in SupplierInput) (Supplier, error) {
	in, err := in.Normalize()
	if err != nil {
		return Supplier{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	sup.Name, sup.ContactEmail, sup.Phone = in.Name, in.ContactEmail, in.Phone
	s.suppliers[id] = sup
	return sup, nil
}

func (s *InMemory) DeleteSupplier(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[id]; !ok {
		return ErrNotFound
	}
	for _, p := range s.parts {
		if p.SupplierID == id {
			return fmt.Errorf("%w: supplier has spare parts", ErrReferentialConflict)
		}
	}
	delete(s.suppliers, id)
	return nil
}
