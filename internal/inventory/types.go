package inventory

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Prices are minor units (e.g., cents). No floats.

// Supplier provides spare parts.
type Supplier struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	ContactEmail string    `json:"contact_email,omitempty" db:"contact_email"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SparePart is a stocked item. SupplierName is joined in on reads.
type SparePart struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Quantity     int       `json:"quantity" db:"quantity"`
	Price        int64     `json:"price" db:"price"`
	SupplierID   string    `json:"supplier_id" db:"supplier_id"`
	SupplierName string    `json:"supplier_name" db:"supplier_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PartInput carries the writable fields of a spare part.
type PartInput struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
	SupplierID string `json:"supplier_id"`
}

// SupplierInput carries the writable fields of a supplier.
type SupplierInput struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	Phone        string `json:"phone"`
}

const (
	SortByName     = "name"
	SortByPrice    = "price"
	SortByQuantity = "quantity"

	DefaultPageSize = 10
	MaxPageSize     = 100

	maxNameLength  = 200
	maxEmailLength = 256
	maxPhoneLength = 50
)

// PartQuery filters, sorts and pages the spare part listing.
// An empty SortBy orders by creation time.
type PartQuery struct {
	Name       string
	SupplierID string
	SortBy     string
	Desc       bool
	Page       int
	PageSize   int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func newPage[T any](items []T, total, page, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}
}

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("resource conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrReferentialConflict = errors.New("resource is still referenced")
)

// Normalize applies defaults and rejects out-of-range values.
func (q PartQuery) Normalize() (PartQuery, error) {
	q.Name = strings.TrimSpace(q.Name)
	q.SupplierID = strings.TrimSpace(q.SupplierID)
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	switch q.SortBy {
	case "", SortByName, SortByPrice, SortByQuantity:
	default:
		return PartQuery{}, fmt.Errorf("%w: unsupported sort field %q", ErrInvalidInput, q.SortBy)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return PartQuery{}, fmt.Errorf("%w: page must be at least 1", ErrInvalidInput)
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return PartQuery{}, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidInput, MaxPageSize)
	}
	if q.Page > math.MaxInt/q.PageSize {
		return PartQuery{}, fmt.Errorf("%w: page is out of range", ErrInvalidInput)
	}
	return q, nil
}

// Offset is the number of rows skipped before the current page.
func (q PartQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Normalize trims the input and validates it.
func (in PartInput) Normalize() (PartInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SupplierID = strings.TrimSpace(in.SupplierID)
	if err := checkName(in.Name); err != nil {
		return PartInput{}, err
	}
	if in.Quantity < 0 {
		return PartInput{}, fmt.Errorf("%w: quantity must be non-negative", ErrInvalidInput)
	}
	if in.Price < 0 {
		return PartInput{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	if in.SupplierID == "" {
		return PartInput{}, fmt.Errorf("%w: supplier_id is required", ErrInvalidInput)
	}
	return in, nil
}

// Normalize trims the input and validates it.
func (in SupplierInput) Normalize() (SupplierInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := checkName(in.Name); err != nil {
		return SupplierInput{}, err
	}
	if in.ContactEmail != "" {
		at := strings.LastIndex(in.ContactEmail, "@")
		if at <= 0 || at == len(in.ContactEmail)-1 || strings.IndexFunc(in.ContactEmail, unicode.IsSpace) >= 0 {
			return SupplierInput{}, fmt.Errorf("%w: contact_email is not valid", ErrInvalidInput)
		}
		if len(in.ContactEmail) > maxEmailLength {
			return SupplierInput{}, fmt.Errorf("%w: contact_email cannot exceed %d characters", ErrInvalidInput, maxEmailLength)
		}
	}
	if utf8.RuneCountInString(in.Phone) > maxPhoneLength {
		return SupplierInput{}, fmt.Errorf("%w: phone cannot exceed %d characters", ErrInvalidInput, maxPhoneLength)
	}
	return in, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name cannot exceed %d characters", ErrInvalidInput, maxNameLength)
	}
	return nil
}

func errSupplierMissing(id string) error {
	return fmt.Errorf("%w: supplier %s not found", ErrInvalidInput, id)
}
