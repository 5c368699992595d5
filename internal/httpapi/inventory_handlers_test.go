package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparehub.org/internal/inventory"
)

func TestSparePartsCRUD(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken()

	resp := f.do(http.MethodPost, "/api/suppliers", inventory.SupplierInput{Name: "Northwind", ContactEmail: "o@northwind.example"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sup := decode[inventory.Supplier](t, resp)

	for _, in := range []inventory.PartInput{
		{Name: "Seal kit", Quantity: 4, Price: 2599, SupplierID: sup.ID},
		{Name: "Drive belt", Quantity: 15, Price: 4150, SupplierID: sup.ID},
		{Name: "Bearing", Quantity: 200, Price: 375, SupplierID: sup.ID},
	} {
		f.expect(http.MethodPost, "/api/spare-parts", in, token, http.StatusCreated)
	}

	f.expect(http.MethodPost, "/api/spare-parts", inventory.PartInput{Name: "Bearing", Quantity: 1, SupplierID: sup.ID}, token, http.StatusConflict)
	f.expect(http.MethodPost, "/api/spare-parts", inventory.PartInput{Name: "Other", Quantity: 1, SupplierID: uuid.NewString()}, token, http.StatusBadRequest)
	f.expect(http.MethodPost, "/api/spare-parts", inventory.PartInput{Name: "Other", Quantity: 1, SupplierID: "bogus"}, token, http.StatusBadRequest)
	f.expect(http.MethodPost, "/api/spare-parts", inventory.PartInput{Name: "Other", Quantity: -1, SupplierID: sup.ID}, token, http.StatusBadRequest)

	q := url.Values{"sort_by": {"price"}, "sort_dir": {"desc"}, "page_size": {"2"}}
	resp = f.do(http.MethodGet, "/api/spare-parts?"+q.Encode(), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[inventory.Page[inventory.SparePart]](t, resp)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Drive belt", page.Items[0].Name)
	assert.Equal(t, "Northwind", page.Items[0].SupplierName)

	resp = f.do(http.MethodGet, "/api/spare-parts?name=Seal", nil, token)
	filtered := decode[inventory.Page[inventory.SparePart]](t, resp)
	require.Len(t, filtered.Items, 1)
	part := filtered.Items[0]

	part.Quantity = 3
	resp = f.do(http.MethodPut, "/api/spare-parts/"+part.ID, inventory.PartInput{Name: part.Name, Quantity: 3, Price: part.Price, SupplierID: sup.ID}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, decode[inventory.SparePart](t, resp).Quantity)

	f.expect(http.MethodGet, "/api/spare-parts/"+part.ID, nil, token, http.StatusOK)
	f.expect(http.MethodDelete, "/api/spare-parts/"+part.ID, nil, token, http.StatusNoContent)
	f.expect(http.MethodGet, "/api/spare-parts/"+part.ID, nil, token, http.StatusNotFound)
}

func TestSparePartQueryValidation(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken()

	for _, raw := range []string{
		"page=0x",
		"page=-1",
		"page_size=101",
		"sort_by=colour",
		"sort_dir=sideways",
		"supplier_id=nope",
		"page=4611686018427387905&page_size=2",
	} {
		f.expect(http.MethodGet, "/api/spare-parts?"+raw, nil, token, http.StatusBadRequest)
	}
}

func TestSupplierDeleteBlockedByParts(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken()

	sup := decode[inventory.Supplier](t, f.do(http.MethodPost, "/api/suppliers", inventory.SupplierInput{Name: "Baltic"}, token))
	f.expect(http.MethodPost, "/api/spare-parts", inventory.PartInput{Name: "Bolt", Quantity: 1, Price: 10, SupplierID: sup.ID}, token, http.StatusCreated)

	f.expect(http.MethodDelete, "/api/suppliers/"+sup.ID, nil, token, http.StatusConflict)
	f.expect(http.MethodPut, "/api/suppliers/"+sup.ID, inventory.SupplierInput{Name: "Baltic Bearings", ContactEmail: "bad"}, token, http.StatusBadRequest)
	f.expect(http.MethodPut, "/api/suppliers/"+sup.ID, inventory.SupplierInput{Name: "Baltic Bearings"}, token, http.StatusOK)

	list := decode[[]inventory.Supplier](t, f.do(http.MethodGet, "/api/suppliers?name=Bearings", nil, token))
	require.Len(t, list, 1)
	assert.Equal(t, "Baltic Bearings", list[0].Name)
}

func TestSupplierWritesNeedManageSuppliers(t *testing.T) {
	f := newFixture(t)
	f.register("viewer@x.com", "secret1")
	token := f.login("viewer@x.com", "secret1").Token

	f.expect(http.MethodGet, "/api/suppliers", nil, token, http.StatusOK)
	f.expect(http.MethodPost, "/api/suppliers", inventory.SupplierInput{Name: "Nope"}, token, http.StatusForbidden)
	f.expect(http.MethodDelete, "/api/suppliers/"+uuid.NewString(), nil, token, http.StatusForbidden)
}

type brokenInventory struct {
	inventory.Service
}

func (brokenInventory) ListSuppliers(context.Context, string) ([]inventory.Supplier, error) {
	return nil, errors.New("connection reset by peer")
}

func TestInternalErrorsHideDetailsOutsideDevelopment(t *testing.T) {
	for _, dev := range []bool{false, true} {
		f := newFixtureWith(t, fixtureConfig{inventory: brokenInventory{inventory.NewInMemory()}, development: dev})
		token := f.adminToken()

		resp := f.do(http.MethodGet, "/api/suppliers", nil, token)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, "internal server error", body["error"])
		assert.NotEmpty(t, body["request_id"])
		if dev {
			assert.Equal(t, "connection reset by peer", body["details"])
		} else {
			assert.NotContains(t, body, "details")
		}
	}
}
