package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/internal/validate"
	"github.com/org/dealership/pkg/models"
)

const reasonUnknownReference = "does not reference an existing record"

// resource serves list/get/create/update/delete for one record kind. Writes
// are validated in full before anything is stored.
type resource[T any] struct {
	rules  *validate.RuleSet[T]
	now    func() time.Time
	list   func(context.Context) ([]*T, error)
	get    func(context.Context, int64) (*T, error)
	create func(context.Context, *T) error
	update func(context.Context, *T) error
	remove func(context.Context, int64) error
	setID  func(*T, int64)
	// refField names the field reported when a write points at a missing record.
	refField string
}

func (rs *resource[T]) mount(r chi.Router, base string) {
	r.Get(base, rs.listHandler)
	r.Post(base, rs.createHandler)
	r.Get(base+"/{id}", rs.getHandler)
	r.Put(base+"/{id}", rs.updateHandler)
	r.Delete(base+"/{id}", rs.deleteHandler)
}

func (rs *resource[T]) listHandler(w http.ResponseWriter, r *http.Request) {
	items, err := rs.list(r.Context())
	if err != nil {
		writeInternal(w, r, err, "listing "+rs.rules.Kind())
		return
	}
	if items == nil {
		items = []*T{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (rs *resource[T]) getHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
		return
	}
	item, err := rs.get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
			return
		}
		writeInternal(w, r, err, "reading "+rs.rules.Kind())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// parse decodes and validates the body. It writes the response and returns
// false when the request cannot proceed.
func (rs *resource[T]) parse(w http.ResponseWriter, r *http.Request) (T, bool) {
	var zero T
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return zero, false
	}
	res, err := rs.rules.ParseJSON(body, rs.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return zero, false
	}
	if !res.OK() {
		countViolations(rs.rules.Kind(), res.Violations)
		writeViolations(w, res.Violations)
		return zero, false
	}
	return res.Record, true
}

func (rs *resource[T]) createHandler(w http.ResponseWriter, r *http.Request) {
	rec, ok := rs.parse(w, r)
	if !ok {
		return
	}
	rs.setID(&rec, 0)
	if err := rs.create(r.Context(), &rec); err != nil {
		rs.writeWriteErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (rs *resource[T]) updateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
		return
	}
	rec, ok := rs.parse(w, r)
	if !ok {
		return
	}
	rs.setID(&rec, id)
	if err := rs.update(r.Context(), &rec); err != nil {
		rs.writeWriteErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rs *resource[T]) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
		return
	}
	if err := rs.remove(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
		case errors.Is(err, storage.ErrInvalidReference):
			writeError(w, http.StatusConflict, rs.rules.Kind()+" is still referenced")
		default:
			writeInternal(w, r, err, "deleting "+rs.rules.Kind())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rs *resource[T]) writeWriteErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, rs.rules.Kind()+" not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, rs.rules.Kind()+" already exists")
	case errors.Is(err, storage.ErrInvalidReference) && rs.refField != "":
		v := validate.Violations{{Field: rs.refField, Reason: reasonUnknownReference}}
		countViolations(rs.rules.Kind(), v)
		writeViolations(w, v)
	default:
		writeInternal(w, r, err, "writing "+rs.rules.Kind())
	}
}

func countViolations(kind string, v validate.Violations) {
	for _, x := range v {
		validationFailures.WithLabelValues(kind, x.Field).Inc()
	}
}

func (s *Server) customers() *resource[models.Customer] {
	return &resource[models.Customer]{
		rules:  s.rules.Customer,
		now:    s.clock.Now,
		list:   s.store.ListCustomers,
		get:    s.store.GetCustomer,
		create: s.store.CreateCustomer,
		update: s.store.UpdateCustomer,
		remove: s.store.DeleteCustomer,
		setID:  func(c *models.Customer, id int64) { c.ID = id },
	}
}

func (s *Server) salespeople() *resource[models.Salesperson] {
	return &resource[models.Salesperson]{
		rules:    s.rules.Salesperson,
		now:      s.clock.Now,
		list:     s.store.ListSalespeople,
		get:      s.store.GetSalesperson,
		create:   s.store.CreateSalesperson,
		update:   s.store.UpdateSalesperson,
		remove:   s.store.DeleteSalesperson,
		setID:    func(sp *models.Salesperson, id int64) { sp.ID = id },
		refField: "user_id",
	}
}

func (s *Server) cars() *resource[models.Car] {
	return &resource[models.Car]{
		rules:    s.rules.Car,
		now:      s.clock.Now,
		list:     s.store.ListCars,
		get:      s.store.GetCar,
		create:   s.store.CreateCar,
		update:   s.store.UpdateCar,
		remove:   s.store.DeleteCar,
		setID:    func(c *models.Car, id int64) { c.ID = id },
		refField: "customer_id",
	}
}
