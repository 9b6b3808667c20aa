package sessionsvc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/server"
)

// Registrar mounts the session routes.
type Registrar struct {
	svc *Service
}

// NewRegistrar wraps the service for HTTP mounting.
func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (reg *Registrar) Mount(r chi.Router) {
	r.Post("/session/start", reg.handleStart)
	r.Post("/session/end", reg.handleEnd)
	r.Get("/nearby/count", reg.handleNearbyCount)
}

type startRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (reg *Registrar) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperrors.Invalid("malformed request body"))
		return
	}

	ses, created, err := reg.svc.Start(r.Context(), server.UserID(r), req.Lat, req.Lng)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	server.WriteJSON(w, status, ses)
}

func (reg *Registrar) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := reg.svc.End(r.Context(), server.UserID(r)); err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (reg *Registrar) handleNearbyCount(w http.ResponseWriter, r *http.Request) {
	count, err := reg.svc.NearbyCount(r.Context(), server.UserID(r))
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}
