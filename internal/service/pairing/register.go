package pairing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/server"
)

// Registrar mounts the match routes.
type Registrar struct {
	svc *Service
}

// NewRegistrar wraps the service for HTTP mounting.
func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (reg *Registrar) Mount(r chi.Router) {
	r.Get("/match/current", reg.handleCurrent)
	r.Post("/match/decline", reg.handleDecline)
	r.Post("/match/{id}/save", reg.handleSave)
	r.Get("/match/{id}/messages", reg.handleListMessages)
	r.Post("/match/{id}/messages", reg.handleSendMessage)
}

func pairingID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Invalid("match id must be a positive integer")
	}
	return id, nil
}

func (reg *Registrar) handleCurrent(w http.ResponseWriter, r *http.Request) {
	current, err := reg.svc.Current(r.Context(), server.UserID(r))
	if err != nil {
		server.WriteError(w, err)
		return
	}
	if current == nil {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "searching"})
		return
	}
	server.WriteJSON(w, http.StatusOK, current)
}

func (reg *Registrar) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := reg.svc.Decline(r.Context(), server.UserID(r)); err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

func (reg *Registrar) handleSave(w http.ResponseWriter, r *http.Request) {
	id, err := pairingID(r)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	result, err := reg.svc.RecordSaveVote(r.Context(), id, server.UserID(r))
	if err != nil {
		server.WriteError(w, err)
		return
	}

	if result.Converted {
		server.WriteJSON(w, http.StatusOK, map[string]string{
			"status":             "converted",
			"permanent_match_id": result.PermanentMatchID,
		})
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "waiting"})
}

func (reg *Registrar) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pairingID(r)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	var before *string
	if tok := r.URL.Query().Get("before"); tok != "" {
		before = &tok
	}
	limit := 50
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.Atoi(lStr); err == nil {
			limit = parsed
		}
	}

	messages, next, err := reg.svc.Messages(r.Context(), id, server.UserID(r), before, limit)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	resp := map[string]interface{}{"messages": messages}
	if next != nil {
		resp["next"] = *next
	}
	server.WriteJSON(w, http.StatusOK, resp)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (reg *Registrar) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pairingID(r)
	if err != nil {
		server.WriteError(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, apperrors.Invalid("malformed request body"))
		return
	}

	msg, err := reg.svc.SendMessage(r.Context(), id, server.UserID(r), req.Text)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, msg)
}
