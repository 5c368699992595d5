package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sparehub.org/internal/inventory"
)

var _ inventory.Service = (*Store)(nil)

const partSelect = `
	select sp.id, sp.name, sp.quantity, sp.price, sp.supplier_id, s.name as supplier_name, sp.created_at
	from spare_parts sp
	join suppliers s on s.id = sp.supplier_id`

const supplierColumns = `id, name, coalesce(contact_email, '') as contact_email, coalesce(phone, '') as phone, created_at`

var partOrderColumns = map[string]string{
	"":                       "sp.created_at",
	inventory.SortByName:     "sp.name",
	inventory.SortByPrice:    "sp.price",
	inventory.SortByQuantity: "sp.quantity",
}

func (s *Store) ListParts(ctx context.Context, q inventory.PartQuery) (inventory.Page[inventory.SparePart], error) {
	q, err := q.Normalize()
	if err != nil {
		return inventory.Page[inventory.SparePart]{}, err
	}
	var (
		conds []string
		args  []any
	)
	if q.Name != "" {
		args = append(args, q.Name)
		conds = append(conds, fmt.Sprintf("strpos(sp.name, $%d) > 0", len(args)))
	}
	if q.SupplierID != "" {
		args = append(args, q.SupplierID)
		conds = append(conds, fmt.Sprintf("sp.supplier_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " where " + strings.Join(conds, " and ")
	}

	var total int
	if err := s.x.GetContext(ctx, &total, `select count(*) from spare_parts sp`+where, args...); err != nil {
		return inventory.Page[inventory.SparePart]{}, err
	}

	dir := "asc"
	if q.Desc && q.SortBy != "" {
		dir = "desc"
	}
	order := fmt.Sprintf(" order by %s %s, sp.id", partOrderColumns[q.SortBy], dir)
	args = append(args, q.PageSize, q.Offset())
	limit := fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))

	items := []inventory.SparePart{}
	if err := s.x.SelectContext(ctx, &items, partSelect+where+order+limit, args...); err != nil {
		return inventory.Page[inventory.SparePart]{}, err
	}
	page := inventory.Page[inventory.SparePart]{
		Items:      items,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}
	return page, nil
}

func (s *Store) GetPart(ctx context.Context, id string) (inventory.SparePart, error) {
	var p inventory.SparePart
	err := s.x.GetContext(ctx, &p, partSelect+` where sp.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.SparePart{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.SparePart{}, err
	}
	return p, nil
}

func (s *Store) CreatePart(ctx context.Context, in inventory.PartInput) (inventory.SparePart, error) {
	in, err := in.Normalize()
	if err != nil {
		return inventory.SparePart{}, err
	}
	id := uuid.NewString()
	_, err = s.x.ExecContext(ctx, `
		insert into spare_parts (id, name, quantity, price, supplier_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, id, in.Name, in.Quantity, in.Price, in.SupplierID, time.Now().UTC())
	if err := partWriteError(err, in.SupplierID); err != nil {
		return inventory.SparePart{}, err
	}
	return s.GetPart(ctx, id)
}

func (s *Store) UpdatePart(ctx context.Context, id string, in inventory.PartInput) (inventory.SparePart, error) {
	in, err := in.Normalize()
	if err != nil {
		return inventory.SparePart{}, err
	}
	res, err := s.x.ExecContext(ctx, `
		update spare_parts
		set name = $2, quantity = $3, price = $4, supplier_id = $5
		where id = $1
	`, id, in.Name, in.Quantity, in.Price, in.SupplierID)
	if err := partWriteError(err, in.SupplierID); err != nil {
		return inventory.SparePart{}, err
	}
	if err := affectedOne(res, inventory.ErrNotFound); err != nil {
		return inventory.SparePart{}, err
	}
	return s.GetPart(ctx, id)
}

func partWriteError(err error, supplierID string) error {
	switch pgCode(err) {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: spare part name already exists", inventory.ErrConflict)
	case pgErrForeignKeyViolation:
		return fmt.Errorf("%w: supplier %s not found", inventory.ErrInvalidInput, supplierID)
	}
	return err
}

func (s *Store) DeletePart(ctx context.Context, id string) error {
	res, err := s.x.ExecContext(ctx, `delete from spare_parts where id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOne(res, inventory.ErrNotFound)
}

func (s *Store) ListSuppliers(ctx context.Context, name string) ([]inventory.Supplier, error) {
	query := `select ` + supplierColumns + ` from suppliers`
	var args []any
	if name = strings.TrimSpace(name); name != "" {
		query += ` where strpos(name, $1) > 0`
		args = append(args, name)
	}
	query += ` order by name, id`

	out := []inventory.Supplier{}
	if err := s.x.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (inventory.Supplier, error) {
	var sup inventory.Supplier
	err := s.x.GetContext(ctx, &sup, `select `+supplierColumns+` from suppliers where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Supplier{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Supplier{}, err
	}
	return sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, in inventory.SupplierInput) (inventory.Supplier, error) {
	in, err := in.Normalize()
	if err != nil {
		return inventory.Supplier{}, err
	}
	var sup inventory.Supplier
	err = s.x.GetContext(ctx, &sup, `
		insert into suppliers (id, name, contact_email, phone, created_at)
		values ($1, $2, $3, $4, $5)
		returning `+supplierColumns,
		uuid.NewString(), in.Name, nullIfEmpty(in.ContactEmail), nullIfEmpty(in.Phone), time.Now().UTC())
	if err != nil {
		return inventory.Supplier{}, err
	}
	return sup, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, id string, in inventory.SupplierInput) (inventory.Supplier, error) {
	in, err := in.Normalize()
	if err != nil {
		return inventory.Supplier{}, err
	}
	var sup inventory.Supplier
	err = s.x.GetContext(ctx, &sup, `
		update suppliers
		set name = $2, contact_email = $3, phone = $4
		where id = $1
		returning `+supplierColumns,
		id, in.Name, nullIfEmpty(in.ContactEmail), nullIfEmpty(in.Phone))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Supplier{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Supplier{}, err
	}
	return sup, nil
}

// DeleteSupplier relies on spare_parts.supplier_id being restrictive.
func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.x.ExecContext(ctx, `delete from suppliers where id = $1`, id)
	if pgCode(err) == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: supplier has spare parts", inventory.ErrReferentialConflict)
	}
	if err != nil {
		return err
	}
	return affectedOne(res, inventory.ErrNotFound)
}
