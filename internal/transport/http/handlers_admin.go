package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	regservice "namereg/internal/registrar/service"
	id "namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// AdminLedgerService is the privileged slice of the ownership ledger.
type AdminLedgerService interface {
	AddController(ctx context.Context, addr, caller id.Address) error
	RemoveController(ctx context.Context, addr, caller id.Address) error
	Migrate(ctx context.Context, items []regservice.MigrationItem, caller id.Address) error
	FinishMigration(ctx context.Context, caller id.Address) error
	ReclaimDomain(ctx context.Context, label string, caller id.Address) error
	TransferDomainOwnership(ctx context.Context, to id.Address, label string, caller id.Address) error
	UpdateBaseURI(ctx context.Context, uri string, caller id.Address) error
	UpdateRegistry(ctx context.Context, addr id.Address, caller id.Address) error
	UpdateBase(ctx context.Context, addr id.Address, caller id.Address) error
	SetResolver(ctx context.Context, addr id.Address, caller id.Address) error
}

// AdminProtocolService is the tunable surface of the immediate protocol.
type AdminProtocolService interface {
	UpdateMaxGasPrice(ctx context.Context, newMax uint64, caller id.Address) error
	SetFeeCollector(ctx context.Context, addr, caller id.Address) error
}

// AdminHandler serves the operator API. The admin-token middleware has
// already authenticated the request; the configured owner account is the
// caller identity for every privileged call.
type AdminHandler struct {
	ledger   AdminLedgerService
	protocol AdminProtocolService
	owner    id.Address
}

func NewAdminHandler(ledger AdminLedgerService, protocol AdminProtocolService, owner id.Address) *AdminHandler {
	return &AdminHandler{ledger: ledger, protocol: protocol, owner: owner}
}

type controllerRequest struct {
	Address string `json:"address"`
}

type migrationItemRequest struct {
	Name        string    `json:"name"`
	Beneficiary string    `json:"beneficiary"`
	CreatedAt   time.Time `json:"created_at"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type domainTransferRequest struct {
	To    string `json:"to"`
	Label string `json:"label"`
}

type maxGasPriceRequest struct {
	MaxGasPrice uint64 `json:"max_gas_price"`
}

func (h *AdminHandler) HandleAddController(w http.ResponseWriter, r *http.Request) {
	var req controllerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	addr, err := id.ParseAddress(req.Address)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := h.ledger.AddController(r.Context(), addr, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleRemoveController(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := h.ledger.RemoveController(r.Context(), addr, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	var req []migrationItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	items := make([]regservice.MigrationItem, 0, len(req))
	for _, item := range req {
		beneficiary, err := id.ParseAddress(item.Beneficiary)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid beneficiary address"))
			return
		}
		items = append(items, regservice.MigrationItem{
			RawName:     item.Name,
			Beneficiary: beneficiary,
			CreatedAt:   item.CreatedAt,
		})
	}

	if err := h.ledger.Migrate(r.Context(), items, h.owner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"migrated": len(items),
	})
}

func (h *AdminHandler) HandleFinishMigration(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.FinishMigration(r.Context(), h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleReclaimDomain(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.ReclaimDomain(r.Context(), req.Value, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleTransferDomain(w http.ResponseWriter, r *http.Request) {
	var req domainTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid to address"))
		return
	}

	if err := h.ledger.TransferDomainOwnership(r.Context(), to, req.Label, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleUpdateBaseURI(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.UpdateBaseURI(r.Context(), req.Value, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleUpdateRegistry(w http.ResponseWriter, r *http.Request) {
	h.updateAddressCell(w, r, h.ledger.UpdateRegistry)
}

func (h *AdminHandler) HandleUpdateBase(w http.ResponseWriter, r *http.Request) {
	h.updateAddressCell(w, r, h.ledger.UpdateBase)
}

func (h *AdminHandler) HandleSetResolver(w http.ResponseWriter, r *http.Request) {
	h.updateAddressCell(w, r, h.ledger.SetResolver)
}

func (h *AdminHandler) HandleUpdateMaxGasPrice(w http.ResponseWriter, r *http.Request) {
	var req maxGasPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.protocol.UpdateMaxGasPrice(r.Context(), req.MaxGasPrice, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) HandleSetFeeCollector(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	// The zero address reverts the protocol to burning fees.
	collector := id.ZeroAddress
	if req.Value != "" && req.Value != string(id.ZeroAddress) {
		parsed, err := id.ParseAddress(req.Value)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
			return
		}
		collector = parsed
	}

	if err := h.protocol.SetFeeCollector(r.Context(), collector, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) updateAddressCell(w http.ResponseWriter, r *http.Request, update func(context.Context, id.Address, id.Address) error) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	addr, err := id.ParseAddress(req.Value)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid address"))
		return
	}

	if err := update(r.Context(), addr, h.owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
