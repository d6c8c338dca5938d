package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ShipmentsService interface {
	Create(ctx context.Context, in models.ShipmentCreateInput) (models.Shipment, error)
	Get(ctx context.Context, id uint64) (models.ShipmentView, error)
	List(ctx context.Context) ([]models.Shipment, error)
	Delete(ctx context.Context, id uint64) error
	AssignTrackNumber(ctx context.Context, id uint64, trackNumber string) (models.Shipment, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, id uint64) (reconciler.Result, error)
}

type ShipmentsAPI struct {
	svc    ShipmentsService
	rec    Reconciler
	logger *zap.Logger
}

func New(svc ShipmentsService, rec Reconciler, logger *zap.Logger) *ShipmentsAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentsAPI{svc: svc, rec: rec, logger: logger}
}

func (a *ShipmentsAPI) Routes(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.get)
			r.Delete("/", a.delete)
			r.Put("/track-number", a.assignTrackNumber)
			r.Post("/reconcile", a.reconcile)
		})
	})
}

type createShipmentRequest struct {
	OriginLabel      string `json:"originLabel"`
	DestinationLabel string `json:"destinationLabel"`
	TrackNumber      string `json:"trackNumber,omitempty"`
}

type assignTrackNumberRequest struct {
	TrackNumber string `json:"trackNumber"`
}

type listShipmentsResponse struct {
	Shipments []models.Shipment `json:"shipments"`
}

// ReconcileResponse: ответ сверки. Stale=true означает "не удалось обновить":
// показываем последнее известное состояние.
type ReconcileResponse struct {
	Outcome  reconciler.Outcome    `json:"outcome"`
	Stale    bool                  `json:"stale"`
	Reason   *courier.GatewayError `json:"reason,omitempty"`
	Shipment models.Shipment       `json:"shipment"`
	History  models.StatusHistory  `json:"history"`
	Meta     *models.BatchMeta     `json:"meta,omitempty"`
	Added    int                   `json:"added"`
	Skipped  int                   `json:"skipped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *ShipmentsAPI) list(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listShipmentsResponse{Shipments: out})
}

func (a *ShipmentsAPI) create(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	sh, err := a.svc.Create(r.Context(), models.ShipmentCreateInput{
		OriginLabel:      req.OriginLabel,
		DestinationLabel: req.DestinationLabel,
		TrackNumber:      req.TrackNumber,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (a *ShipmentsAPI) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	v, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if v.History == nil {
		v.History = models.StatusHistory{}
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *ShipmentsAPI) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := a.svc.Delete(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ShipmentsAPI) assignTrackNumber(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req assignTrackNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	sh, err := a.svc.AssignTrackNumber(r.Context(), id, req.TrackNumber)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *ShipmentsAPI) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	res, err := a.rec.Reconcile(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewReconcileResponse(res))
}

func NewReconcileResponse(res reconciler.Result) ReconcileResponse {
	h := res.History
	if h == nil {
		h = models.StatusHistory{}
	}
	return ReconcileResponse{
		Outcome:  res.Outcome,
		Stale:    res.Stale(),
		Reason:   res.Reason,
		Shipment: res.Shipment,
		History:  h,
		Meta:     res.Meta,
		Added:    len(res.Added),
		Skipped:  len(res.Skipped),
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid shipment id"})
		return 0, false
	}
	return id, true
}

func (a *ShipmentsAPI) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: models.ErrNotFound.Error()})
	case errors.Is(err, shipments.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		a.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
