package safety

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/server"
)

// Registrar mounts the safety routes.
type Registrar struct {
	svc *Service
}

// NewRegistrar wraps the service for HTTP mounting.
func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (reg *Registrar) Mount(r chi.Router) {
	r.Post("/match/{id}/block", reg.handleBlock)
	r.Post("/match/{id}/report", reg.handleReport)
}

func pairingID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Invalid("match id must be a positive integer")
	}
	return id, nil
}

func (reg *Registrar) handleBlock(w http.ResponseWriter, r *http.Request) {
	id, err := pairingID(r)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	if err := reg.svc.Block(r.Context(), server.UserID(r), id); err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

type reportRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

func (reg *Registrar) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := pairingID(r)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperrors.Invalid("malformed request body"))
		return
	}

	if err := reg.svc.Report(r.Context(), server.UserID(r), id, req.Reason, req.Details); err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "reported"})
}
