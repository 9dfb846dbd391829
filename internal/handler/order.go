package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"orderdesk/internal/cache"
	"orderdesk/internal/duedate"
	"orderdesk/internal/label"
	"orderdesk/internal/model"
	"orderdesk/internal/status"
	"orderdesk/internal/view"
)

// OrderLister is the rendered, memoized order sequence.
type OrderLister interface {
	Orders(v view.View) []model.Order
	Snapshot() cache.Snapshot
}

// OrderStore applies operator mutations.
type OrderStore interface {
	Get(id int64) (model.Order, bool)
	UpdateNote(ctx context.Context, id int64, note string) error
	ReplaceTags(ctx context.Context, id int64, tags label.Labels) error
	SetPriority(ctx context.Context, id int64, on bool) error
	SetStatus(ctx context.Context, id int64, to status.Status) error
	BulkSetStatus(ctx context.Context, ids []int64, to status.Status) error
	SetDueDate(ctx context.Context, id int64, due *time.Time) error
	SetStartDate(ctx context.Context, id int64, start *time.Time) error
	Delete(ctx context.Context, id int64) error
	CreateShipment(ctx context.Context, id int64, req model.ShipmentRequest) error
}

// Orders serves the order list and its mutations.
type Orders struct {
	List     OrderLister
	Store    OrderStore
	Resolver duedate.Resolver
	Now      func() time.Time
}

type orderResponse struct {
	model.Order
	Status        string `json:"status"`
	Priority      bool   `json:"priority"`
	StartDate     string `json:"start_date"`
	DueDate       string `json:"due_date"`
	DaysRemaining int    `json:"days_remaining"`
}

func (h *Orders) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Orders) render(o model.Order, now time.Time) orderResponse {
	f := o.Facts()
	win := h.Resolver.Resolve(o)
	return orderResponse{
		Order:         o,
		Status:        f.Status.String(),
		Priority:      f.Has(label.Priority),
		StartDate:     duedate.FormatDate(win.Start),
		DueDate:       duedate.FormatDate(win.Due),
		DaysRemaining: duedate.DaysRemaining(win.Due, now),
	}
}

func (h *Orders) ListOrders(w http.ResponseWriter, r *http.Request) {
	v, err := view.ParseView(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	orders := h.List.Orders(v)
	now := h.now()
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, h.render(o, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Orders) Counts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.Counts(h.List.Snapshot()))
}

func (h *Orders) Items(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.ItemCatalog(h.List.Snapshot()))
}

func (h *Orders) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, ok := h.Store.Get(id)
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.render(o, h.now()))
}

// accepted answers a dispatched mutation with the optimistic record.
func (h *Orders) accepted(w http.ResponseWriter, id int64) {
	o, ok := h.Store.Get(id)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusAccepted, h.render(o, h.now()))
}

// mutate decodes the body into req, dispatches and answers 202.
func mutate[T any](h *Orders, dispatch func(ctx context.Context, id int64, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req T
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := dispatch(r.Context(), id, req); err != nil {
			var invalid invalidRequest
			if errors.As(err, &invalid) {
				http.Error(w, invalid.Error(), http.StatusUnprocessableEntity)
				return
			}
			mutationError(w, err)
			return
		}
		h.accepted(w, id)
	}
}

type invalidRequest string

func (e invalidRequest) Error() string { return string(e) }

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Orders) UpdateNote() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req noteRequest) error {
		return h.Store.UpdateNote(ctx, id, req.Note)
	})
}

type tagsRequest struct {
	Tags label.Labels `json:"tags"`
}

func (h *Orders) ReplaceTags() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req tagsRequest) error {
		return h.Store.ReplaceTags(ctx, id, req.Tags)
	})
}

type priorityRequest struct {
	Priority *bool `json:"priority"`
}

func (h *Orders) SetPriority() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req priorityRequest) error {
		if req.Priority == nil {
			return invalidRequest("priority is required")
		}
		return h.Store.SetPriority(ctx, id, *req.Priority)
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func parseStatus(raw string) (status.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", invalidRequest("status is required")
	}
	st, err := status.Parse(raw)
	if err != nil {
		return "", invalidRequest("unknown status " + strings.TrimSpace(raw))
	}
	return st, nil
}

func (h *Orders) SetStatus() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req statusRequest) error {
		st, err := parseStatus(req.Status)
		if err != nil {
			return err
		}
		return h.Store.SetStatus(ctx, id, st)
	})
}

// dateRequest holds a calendar date; null or "" clears the override.
type dateRequest struct {
	Date *string `json:"date"`
}

func (req dateRequest) parse() (*time.Time, error) {
	if req.Date == nil || strings.TrimSpace(*req.Date) == "" {
		return nil, nil
	}
	t, ok := duedate.ParseDate(*req.Date)
	if !ok {
		return nil, invalidRequest("invalid date " + *req.Date)
	}
	return &t, nil
}

func (h *Orders) SetDueDate() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req dateRequest) error {
		due, err := req.parse()
		if err != nil {
			return err
		}
		return h.Store.SetDueDate(ctx, id, due)
	})
}

func (h *Orders) SetStartDate() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req dateRequest) error {
		start, err := req.parse()
		if err != nil {
			return err
		}
		return h.Store.SetStartDate(ctx, id, start)
	})
}

func (h *Orders) CreateShipment() http.HandlerFunc {
	return mutate(h, func(ctx context.Context, id int64, req model.ShipmentRequest) error {
		req.CityID = strings.TrimSpace(req.CityID)
		req.NeighborhoodID = strings.TrimSpace(req.NeighborhoodID)
		if req.CityID == "" || req.NeighborhoodID == "" {
			return invalidRequest("city_id and neighborhood_id are required")
		}
		if req.Pieces <= 0 {
			req.Pieces = 1
		}
		return h.Store.CreateShipment(ctx, id, req)
	})
}

func (h *Orders) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type bulkStatusRequest struct {
	OrderIDs []int64 `json:"order_ids"`
	Status   string  `json:"status"`
}

func (h *Orders) BulkSetStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.OrderIDs) == 0 {
		http.Error(w, "order_ids is empty", http.StatusUnprocessableEntity)
		return
	}
	st, err := parseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := h.Store.BulkSetStatus(r.Context(), req.OrderIDs, st); err != nil {
		mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
