package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/auth"
	"github.com/honeynil/marketplace-tx/internal/models"
	service "github.com/honeynil/marketplace-tx/internal/services"
	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service service.TransactionService
}

func NewHandler(s service.TransactionService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error   string           `json:"error"`
	Codes   []pkgerrors.Code `json:"codes,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeServiceError maps service errors to statuses. Configuration defects get
// a generic message; the details are in the logs.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var ve *pkgerrors.ValidationError
	var pe *pkgerrors.PaymentError
	var ne *pkgerrors.NotReadyError
	switch {
	case errors.As(err, &ve):
		message := ""
		if len(ve.Codes) > 0 {
			message = ve.Codes[0].Message()
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_failed", Codes: ve.Codes, Message: message})
	case errors.As(err, &ne):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: string(pkgerrors.CodeNotReadyForPayments), Message: ne.Message})
	case errors.As(err, &pe):
		h.writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: string(pe.Code), Message: pe.Code.Message()})
	case errors.Is(err, pkgerrors.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, pkgerrors.ErrNotAuthorized)
	case errors.Is(err, pkgerrors.ErrInvalidTransition),
		errors.Is(err, pkgerrors.ErrTransactionLocked),
		errors.Is(err, pkgerrors.ErrStateConflict):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrListingNotFound),
		errors.Is(err, pkgerrors.ErrTokenNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pkgerrors.ErrWebhookSignature):
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrWebhookSignature)
	case errors.Is(err, pkgerrors.ErrUnknownGateway):
		h.writeError(w, http.StatusNotFound, pkgerrors.ErrUnknownGateway)
	default:
		slog.Error("request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   string(pkgerrors.CodeSomethingWentWrong),
			Message: pkgerrors.CodeSomethingWentWrong.Message(),
		})
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks/{gateway}", h.Webhook).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	r.HandleFunc("/transactions/{uuid}/finalize", h.FinalizeTransaction).Methods("POST")
	r.HandleFunc("/transactions/{uuid}/transitions", h.Transition).Methods("POST")
	r.HandleFunc("/transactions/{uuid}/seen", h.MarkSeen).Methods("POST")
	r.HandleFunc("/process-tokens/{token}", h.GetAsyncStatus).Methods("GET")
	r.HandleFunc("/listings/{uuid}/posting-status", h.PostingStatus).Methods("GET")
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
	}
	return actor, ok
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req service.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	req.StarterID = actor.ID
	req.StarterAdmin = actor.Admin

	tx, err := h.service.CreateTransaction(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) FinalizeTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	txUUID, ok := h.pathUUID(w, r, "uuid")
	if !ok {
		return
	}

	var req struct {
		ForceSync bool `json:"force_sync"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	res, err := h.service.FinalizeTransaction(r.Context(), txUUID, actor, req.ForceSync)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	slog.Info("finalize requested", "transaction_id", txUUID, "person_id", actor.ID, "completed", res.Completed)

	status := http.StatusOK
	if !res.Completed {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, res)
}

func (h *Handler) GetAsyncStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := h.pathUUID(w, r, "token")
	if !ok {
		return
	}

	status, err := h.service.GetAsyncStatus(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	txUUID, ok := h.pathUUID(w, r, "uuid")
	if !ok {
		return
	}

	var req struct {
		Action models.Action `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Action == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("action is required"))
		return
	}

	tx, err := h.service.Transition(r.Context(), txUUID, req.Action, actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	txUUID, ok := h.pathUUID(w, r, "uuid")
	if !ok {
		return
	}

	if err := h.service.MarkSeen(r.Context(), txUUID, actor.ID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PostingStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	listingUUID, ok := h.pathUUID(w, r, "uuid")
	if !ok {
		return
	}

	status, err := h.service.PostingStatus(r.Context(), listingUUID, actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// Webhook acknowledges with 200 once the event is applied or known to be a
// replay; any other answer makes the gateway retry.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := models.Gateway(mux.Vars(r)["gateway"])

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), gatewayName, r, body); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
