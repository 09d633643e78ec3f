package idmapping

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	apphttp "github.com/cipherid/registry-middleware/pkg/app/http"
	"github.com/cipherid/registry-middleware/pkg/auth"
)

const maxBodyBytes = 1 << 20 // 1MB limit

// HTTP wraps the mapping Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the identifier mapping endpoints on the router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/idmapping", apphttp.HandleError(h.generateID))
	r.Get("/idmapping/{addr}", apphttp.HandleError(h.getID))
}

type generatePayload struct {
	Address string `json:"address"`
}

type mappingResponse struct {
	UserID  uint64 `json:"user_id"`
	Address string `json:"address"`
}

func (h *HTTP) generateID(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var payload generatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if !auth.ValidateEVMAddress(payload.Address) {
		return apperrors.BadRequestError(nil, "invalid address")
	}

	addr := common.HexToAddress(payload.Address)
	id, err := h.service.GenerateID(r.Context(), addr)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusCreated, mappingResponse{
		UserID:  uint64(id),
		Address: addr.Hex(),
	})
	return nil
}

func (h *HTTP) getID(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "addr")
	if !auth.ValidateEVMAddress(raw) {
		return apperrors.BadRequestError(nil, "invalid address")
	}

	addr := common.HexToAddress(raw)
	id, err := h.service.GetID(r.Context(), addr)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, mappingResponse{
		UserID:  uint64(id),
		Address: addr.Hex(),
	})
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
