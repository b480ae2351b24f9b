package routeplans_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/services/routeplans"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type RoutePlansAPI struct {
	svc *routeplans.Service
}

func New(svc *routeplans.Service) *RoutePlansAPI {
	return &RoutePlansAPI{svc: svc}
}

// Routes собирает все ручки API планов маршрутов.
func (a *RoutePlansAPI) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/route-plans", a.createRoutePlan)
	r.Get("/route-plans", a.listRoutePlans)
	r.Get("/route-plans/{planID}", a.getRoutePlan)
	r.Patch("/route-plans/{planID}/status", a.updateStatus)
	r.Delete("/route-plans/{planID}", a.deleteRoutePlan)

	r.Get("/route-plans/{planID}/route", a.materializedRoute)
	r.Get("/route-plans/{planID}/progress", a.progress)

	r.Post("/route-plans/{planID}/avoidance-areas", a.proposeArea)
	r.Post("/avoidance-areas/{areaID}/approve", a.approveArea)
	r.Post("/avoidance-areas/{areaID}/reject", a.rejectArea)
	r.Delete("/avoidance-areas/{areaID}", a.deleteArea)
	r.Get("/avoidance-areas/permanent", a.listPermanentAreas)

	return r
}

func (a *RoutePlansAPI) createRoutePlan(w http.ResponseWriter, r *http.Request) {
	var req createRoutePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	plan, err := a.svc.CreateRoutePlan(r.Context(), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoutePlanDTO(plan))
}

func (a *RoutePlansAPI) getRoutePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	plan, err := a.svc.GetRoutePlan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutePlanDTO(plan))
}

func (a *RoutePlansAPI) listRoutePlans(w http.ResponseWriter, r *http.Request) {
	driverID, _ := strconv.ParseUint(r.URL.Query().Get("driverId"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	plans, err := a.svc.ListRoutePlansByDriver(r.Context(), driverID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]routePlanDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, toRoutePlanDTO(p))
	}
	writeJSON(w, http.StatusOK, listRoutePlansResponse{RoutePlans: out})
}

func (a *RoutePlansAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	plan, err := a.svc.UpdateRoutePlanStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutePlanDTO(plan))
}

func (a *RoutePlansAPI) deleteRoutePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	if err := a.svc.DeleteRoutePlan(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *RoutePlansAPI) materializedRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	m, err := a.svc.MaterializedRoute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *RoutePlansAPI) progress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	p, found, err := a.svc.Progress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no progress recorded"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *RoutePlansAPI) proposeArea(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	var req proposeAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	area, err := a.svc.ProposeAvoidanceArea(r.Context(), id, req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAreaDTO(area))
}

func (a *RoutePlansAPI) approveArea(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "areaID")
	if !ok {
		return
	}
	area, err := a.svc.ApproveAvoidanceArea(r.Context(), id)
	if err != nil {
		// Частичный успех: зона подтверждена, но пересчёт не прошёл.
		// Отдаём ошибку провайдера, клиент увидит stale-геометрию.
		if area != nil {
			var pe *directions.ProviderError
			if errors.As(err, &pe) {
				writeJSON(w, http.StatusBadGateway, approveAreaDegradedResponse{
					Area:  toAreaDTO(area),
					Error: err.Error(),
				})
				return
			}
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAreaDTO(area))
}

func (a *RoutePlansAPI) rejectArea(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "areaID")
	if !ok {
		return
	}
	area, err := a.svc.RejectAvoidanceArea(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAreaDTO(area))
}

func (a *RoutePlansAPI) deleteArea(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "areaID")
	if !ok {
		return
	}
	if err := a.svc.DeleteAvoidanceArea(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *RoutePlansAPI) listPermanentAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := a.svc.ListPermanentAreas(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]avoidanceAreaDTO, 0, len(areas))
	for _, area := range areas {
		out = append(out, toAreaDTO(area))
	}
	writeJSON(w, http.StatusOK, listAreasResponse{Areas: out})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		writeBadRequest(w, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeError(w http.ResponseWriter, err error) {
	var ve *routeplans.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	var pe *directions.ProviderError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	slog.Error("internal error", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
