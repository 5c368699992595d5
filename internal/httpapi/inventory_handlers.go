package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sparehub.org/internal/inventory"
)

func (a *API) registerInventory(r chi.Router) {
	r.Route("/spare-parts", func(r chi.Router) {
		r.With(a.protect(OpPartsList)).Get("/", a.listParts)
		r.With(a.protect(OpPartsCreate)).Post("/", a.createPart)
		r.With(a.protect(OpPartsGet)).Get("/{id}", a.getPart)
		r.With(a.protect(OpPartsUpdate)).Put("/{id}", a.updatePart)
		r.With(a.protect(OpPartsDelete)).Delete("/{id}", a.deletePart)
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.With(a.protect(OpSuppliersList)).Get("/", a.listSuppliers)
		r.With(a.protect(OpSuppliersCreate)).Post("/", a.createSupplier)
		r.With(a.protect(OpSuppliersGet)).Get("/{id}", a.getSupplier)
		r.With(a.protect(OpSuppliersUpdate)).Put("/{id}", a.updateSupplier)
		r.With(a.protect(OpSuppliersDelete)).Delete("/{id}", a.deleteSupplier)
	})
}

func partQueryFromRequest(r *http.Request) (inventory.PartQuery, string) {
	q := r.URL.Query()
	page, err := parseIntParam(q.Get("page"), "page", 1)
	if err != nil {
		return inventory.PartQuery{}, err.Error()
	}
	size, err := parseIntParam(q.Get("page_size"), "page_size", inventory.DefaultPageSize)
	if err != nil {
		return inventory.PartQuery{}, err.Error()
	}
	supplierID := strings.TrimSpace(q.Get("supplier_id"))
	if supplierID != "" {
		if _, err := uuid.Parse(supplierID); err != nil {
			return inventory.PartQuery{}, "supplier_id is not valid"
		}
	}
	var desc bool
	switch strings.ToLower(q.Get("sort_dir")) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return inventory.PartQuery{}, "sort_dir must be asc or desc"
	}
	return inventory.PartQuery{
		Name:       q.Get("name"),
		SupplierID: supplierID,
		SortBy:     q.Get("sort_by"),
		Desc:       desc,
		Page:       page,
		PageSize:   size,
	}, ""
}

func (a *API) listParts(w http.ResponseWriter, r *http.Request) {
	query, msg := partQueryFromRequest(r)
	if msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	page, err := a.inventory.ListParts(r.Context(), query)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getPart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	part, err := a.inventory.GetPart(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

// decodePartInput rejects supplier ids that are not UUIDs the same way as unknown suppliers.
func decodePartInput(w http.ResponseWriter, r *http.Request) (inventory.PartInput, bool) {
	var in inventory.PartInput
	if !decodeOr400(w, r, &in) {
		return in, false
	}
	if sid := strings.TrimSpace(in.SupplierID); sid != "" {
		if _, err := uuid.Parse(sid); err != nil {
			writeError(w, r, http.StatusBadRequest, "supplier "+sid+" not found")
			return in, false
		}
	}
	return in, true
}

func (a *API) createPart(w http.ResponseWriter, r *http.Request) {
	in, ok := decodePartInput(w, r)
	if !ok {
		return
	}
	part, err := a.inventory.CreatePart(r.Context(), in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/spare-parts/"+part.ID)
	writeJSON(w, http.StatusCreated, part)
}

func (a *API) updatePart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodePartInput(w, r)
	if !ok {
		return
	}
	part, err := a.inventory.UpdatePart(r.Context(), id, in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (a *API) deletePart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.inventory.DeletePart(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.inventory.ListSuppliers(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

func (a *API) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sup, err := a.inventory.GetSupplier(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (a *API) createSupplier(w http.ResponseWriter, r *http.Request) {
	var in inventory.SupplierInput
	if !decodeOr400(w, r, &in) {
		return
	}
	sup, err := a.inventory.CreateSupplier(r.Context(), in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/suppliers/"+sup.ID)
	writeJSON(w, http.StatusCreated, sup)
}

func (a *API) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in inventory.SupplierInput
	if !decodeOr400(w, r, &in) {
		return
	}
	sup, err := a.inventory.UpdateSupplier(r.Context(), id, in)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (a *API) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.inventory.DeleteSupplier(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
