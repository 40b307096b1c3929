package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// CommitRevealService is the two-phase protocol surface.
type CommitRevealService interface {
	Hash(rawName string, beneficiary id.Address, salt id.Hash, caller id.Address) id.Hash
	Commit(ctx context.Context, hash id.Hash, caller id.Address) error
	Reveal(ctx context.Context, rawName string, beneficiary id.Address, salt id.Hash, caller id.Address) (id.Hash, error)
}

type CommitsHandler struct {
	protocol CommitRevealService
}

func NewCommitsHandler(protocol CommitRevealService) *CommitsHandler {
	return &CommitsHandler{protocol: protocol}
}

type commitRequest struct {
	Hash string `json:"hash"`
}

type revealRequest struct {
	Name        string `json:"name"`
	Beneficiary string `json:"beneficiary"`
	Salt        string `json:"salt"`
}

// HandleHash computes the commitment for the caller's intent without storing
// anything. Clients that derive the hash themselves never need this endpoint.
func (h *CommitsHandler) HandleHash(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	beneficiary, err := id.ParseAddress(q.Get("beneficiary"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid beneficiary address"))
		return
	}
	salt, err := id.ParseHash(q.Get("salt"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid salt"))
		return
	}

	hash := h.protocol.Hash(q.Get("name"), beneficiary, salt, requestcontext.Caller(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": hash.String(),
	})
}

func (h *CommitsHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	hash, err := id.ParseHash(req.Hash)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid commit hash"))
		return
	}

	if err := h.protocol.Commit(r.Context(), hash, requestcontext.Caller(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"hash": hash.String(),
	})
}

func (h *CommitsHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	beneficiary, err := id.ParseAddress(req.Beneficiary)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid beneficiary address"))
		return
	}
	salt, err := id.ParseHash(req.Salt)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid salt"))
		return
	}

	tokenID, err := h.protocol.Reveal(r.Context(), req.Name, beneficiary, salt, requestcontext.Caller(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"name":     req.Name,
		"token_id": tokenID.String(),
	})
}
