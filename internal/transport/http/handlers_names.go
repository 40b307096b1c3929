package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// LedgerService is the slice of the ownership ledger the name endpoints use.
type LedgerService interface {
	GetTokenID(ctx context.Context, rawName string) (id.Hash, error)
	GetOwnerOf(ctx context.Context, rawName string) (id.Address, error)
	Available(ctx context.Context, rawName string) (bool, error)
	TokenURI(ctx context.Context, tokenID id.Hash) (string, error)
	Tokens(ctx context.Context, owner id.Address) ([]id.Hash, error)
	Transfer(ctx context.Context, tokenID id.Hash, from, to, caller id.Address) error
	Reclaim(ctx context.Context, tokenID id.Hash, newOwner, caller id.Address) error
	Approve(ctx context.Context, tokenID id.Hash, approved, caller id.Address) error
	SetApprovalForAll(ctx context.Context, operator id.Address, approved bool, caller id.Address) error
}

// BuyService is the immediate registration protocol surface.
type BuyService interface {
	Register(ctx context.Context, rawName string, beneficiary, caller id.Address) (id.Hash, error)
}

type NamesHandler struct {
	ledger LedgerService
	buy    BuyService
}

func NewNamesHandler(ledger LedgerService, buy BuyService) *NamesHandler {
	return &NamesHandler{ledger: ledger, buy: buy}
}

type registerRequest struct {
	Name        string `json:"name"`
	Beneficiary string `json:"beneficiary"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type reclaimRequest struct {
	Owner string `json:"owner"`
}

type approveRequest struct {
	Approved string `json:"approved"`
}

type operatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (h *NamesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	beneficiary, err := id.ParseAddress(req.Beneficiary)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid beneficiary address"))
		return
	}

	tokenID, err := h.buy.Register(r.Context(), req.Name, beneficiary, requestcontext.Caller(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"name":     req.Name,
		"token_id": tokenID.String(),
	})
}

func (h *NamesHandler) HandleGetName(w http.ResponseWriter, r *http.Request) {
	rawName := chi.URLParam(r, "name")

	tokenID, err := h.ledger.GetTokenID(r.Context(), rawName)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := h.ledger.GetOwnerOf(r.Context(), rawName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     rawName,
		"token_id": tokenID.String(),
		"owner":    owner.String(),
	})
}

func (h *NamesHandler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	rawName := chi.URLParam(r, "name")

	available, err := h.ledger.Available(r.Context(), rawName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      rawName,
		"available": available,
	})
}

func (h *NamesHandler) HandleTokenURI(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}

	uri, err := h.ledger.TokenURI(r.Context(), tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token_id": tokenID.String(),
		"uri":      uri,
	})
}

func (h *NamesHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	owner, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	tokens, err := h.ledger.Tokens(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":  owner.String(),
		"tokens": out,
	})
}

func (h *NamesHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	from, err := id.ParseAddress(req.From)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid from address"))
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to address"))
		return
	}

	if err := h.ledger.Transfer(r.Context(), tokenID, from, to, requestcontext.Caller(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NamesHandler) HandleReclaim(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	var req reclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	owner, err := id.ParseAddress(req.Owner)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid owner address"))
		return
	}

	if err := h.ledger.Reclaim(r.Context(), tokenID, owner, requestcontext.Caller(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NamesHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	// The zero address clears a previous approval.
	var approved id.Address
	if req.Approved != "" {
		approved, err = id.ParseAddress(req.Approved)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid approved address"))
			return
		}
	}

	if err := h.ledger.Approve(r.Context(), tokenID, approved, requestcontext.Caller(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NamesHandler) HandleSetOperator(w http.ResponseWriter, r *http.Request) {
	var req operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	operator, err := id.ParseAddress(req.Operator)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid operator address"))
		return
	}

	if err := h.ledger.SetApprovalForAll(r.Context(), operator, req.Approved, requestcontext.Caller(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
