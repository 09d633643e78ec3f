package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	apphttp "github.com/cipherid/registry-middleware/pkg/app/http"
	"github.com/cipherid/registry-middleware/pkg/fhe"
)

const maxBodyBytes = 1 << 20 // 1MB limit

var validate = validator.New()

// HTTP wraps the gateway Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the gateway endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/gateway/decrypt", apphttp.HandleError(h.decrypt))
}

type decryptPayload struct {
	Handle    string `json:"handle" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type decryptResponse struct {
	Type  string `json:"type"`
	Value uint64 `json:"value,omitempty"`
	Bytes string `json:"bytes,omitempty"`
}

func (h *HTTP) decrypt(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var payload decryptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := validate.Struct(&payload); err != nil {
		return apperrors.BadRequestError(err, "invalid request")
	}

	handle, err := fhe.HandleFromHex(payload.Handle)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid handle")
	}

	result, err := h.service.Decrypt(r.Context(), &DecryptRequest{
		Handle:    handle,
		Message:   payload.Message,
		Signature: payload.Signature,
	})
	if err != nil {
		return err
	}

	resp := decryptResponse{Type: result.Type.String()}
	if result.Type.Numeric() {
		resp.Value = result.Value
	} else {
		resp.Bytes = hexutil.Encode(result.Bytes)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	return nil
}
