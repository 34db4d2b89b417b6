package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
)

const maxWebhookBody = 1 << 20

// handlePaymentWebhook feeds one delivery to the fulfillment engine. The
// response code is the contract with the sender: 2xx acknowledges (no
// redelivery), 4xx rejects a delivery that can never verify, 5xx asks the
// sender to retry later.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	err = s.engine.Process(r.Context(), body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, common.ErrMissingSignature),
		errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrMalformedEvent):
		http.Error(w, "bad request", http.StatusBadRequest)
	default:
		s.logger.Error(r.Context(), "webhook processing failed", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type libraryItem struct {
	BookID    string    `json:"book_id"`
	GrantedAt time.Time `json:"granted_at"`
}

type libraryResponse struct {
	Items []libraryItem `json:"items"`
}

// handleListLibrary returns the caller's granted entitlements.
func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	ac, ok := AuthContextFrom(r.Context())
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	grants, err := s.repos.Entitlements(s.db).ListByUser(r.Context(), ac.Subject)
	if err != nil {
		s.logger.Error(r.Context(), "failed to list entitlements", "user_id", ac.Subject, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := libraryResponse{Items: make([]libraryItem, 0, len(grants))}
	for _, g := range grants {
		resp.Items = append(resp.Items, libraryItem{BookID: g.BookID, GrantedAt: g.GrantedAt})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error(r.Context(), "failed to encode response", "error", err.Error())
	}
}
