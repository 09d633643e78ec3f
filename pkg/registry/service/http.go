package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	apphttp "github.com/cipherid/registry-middleware/pkg/app/http"
	"github.com/cipherid/registry-middleware/pkg/auth"
	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

const maxBodyBytes = 1 << 20 // 1MB limit

var validate = validator.New()

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the registry endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Post("/identities", apphttp.HandleError(h.register))
	r.Get("/identities/{userID}", apphttp.HandleError(h.getIdentity))
	r.Get("/identities/{userID}/fields/{name}", apphttp.HandleError(h.getField))
	r.Post("/claims", apphttp.HandleError(h.generateClaim))
	r.Get("/claims/{claimID}", apphttp.HandleError(h.getClaim))
}

type encryptedInputPayload struct {
	Ciphertext string `json:"ciphertext" validate:"required"`
	Proof      string `json:"proof" validate:"required"`
}

type registerPayload struct {
	UserID    uint64                `json:"user_id" validate:"required"`
	Score     encryptedInputPayload `json:"score" validate:"required"`
	Firstname encryptedInputPayload `json:"firstname" validate:"required"`
	Lastname  encryptedInputPayload `json:"lastname" validate:"required"`
	Birthdate encryptedInputPayload `json:"birthdate" validate:"required"`
	Message   string                `json:"message" validate:"required"`
	Signature string                `json:"signature" validate:"required"`
}

type identityResponse struct {
	UserID       uint64            `json:"user_id"`
	Fields       map[string]string `json:"fields"`
	RegisteredAt time.Time         `json:"registered_at"`
}

type claimPayload struct {
	UserIDs    []uint64 `json:"user_ids"`
	FieldNames []string `json:"field_names" validate:"required"`
	Message    string   `json:"message" validate:"required"`
	Signature  string   `json:"signature" validate:"required"`
}

type claimResponse struct {
	ClaimID      uint64    `json:"claim_id"`
	ResultHandle string    `json:"result_handle"`
	UserCount    int       `json:"user_count"`
	Cost         string    `json:"cost,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "invalid request")
	}
	return nil
}

func (p *encryptedInputPayload) toInput() (EncryptedInput, error) {
	ciphertext, err := hexutil.Decode(p.Ciphertext)
	if err != nil {
		return EncryptedInput{}, err
	}
	proof, err := hexutil.Decode(p.Proof)
	if err != nil {
		return EncryptedInput{}, err
	}
	return EncryptedInput{Ciphertext: ciphertext, Proof: proof}, nil
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) error {
	var payload registerPayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	caller, err := auth.VerifyEIP191Signature(payload.Message, payload.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "invalid signature")
	}

	req := &RegisterRequest{
		Caller: caller,
		UserID: identity.UserID(payload.UserID),
	}
	for _, in := range []struct {
		payload encryptedInputPayload
		dst     *EncryptedInput
	}{
		{payload.Score, &req.Score},
		{payload.Firstname, &req.Firstname},
		{payload.Lastname, &req.Lastname},
		{payload.Birthdate, &req.Birthdate},
	} {
		input, err := in.payload.toInput()
		if err != nil {
			return apperrors.BadRequestError(err, "invalid ciphertext encoding")
		}
		*in.dst = input
	}

	// The signed message must commit to the user id and the exact inputs, or
	// a captured (message, signature) pair could be replayed with a different
	// user id or substituted ciphertexts.
	digest := RegisterDigest(req.UserID, req.Score, req.Firstname, req.Lastname, req.Birthdate)
	if !messageBinds(payload.Message, digest) {
		return apperrors.BadRequestError(ErrRequestNotBound, "signed message does not bind the request")
	}

	record, err := h.service.RegisterIdentity(r.Context(), req)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusCreated, toIdentityResponse(record))
	return nil
}

func (h *HTTP) getIdentity(w http.ResponseWriter, r *http.Request) error {
	userID, err := parseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		return err
	}

	record, err := h.service.GetIdentity(r.Context(), userID)
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, toIdentityResponse(record))
	return nil
}

func (h *HTTP) getField(w http.ResponseWriter, r *http.Request) error {
	userID, err := parseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		return err
	}

	handle, err := h.service.GetField(r.Context(), userID, chi.URLParam(r, "name"))
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"handle": handle.Hex()})
	return nil
}

func (h *HTTP) generateClaim(w http.ResponseWriter, r *http.Request) error {
	var payload claimPayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	caller, err := auth.VerifyEIP191Signature(payload.Message, payload.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "invalid signature")
	}

	userIDs := make([]identity.UserID, 0, len(payload.UserIDs))
	for _, id := range payload.UserIDs {
		userIDs = append(userIDs, identity.UserID(id))
	}

	if !messageBinds(payload.Message, ClaimDigest(userIDs, payload.FieldNames)) {
		return apperrors.BadRequestError(ErrRequestNotBound, "signed message does not bind the request")
	}

	result, err := h.service.GenerateClaim(r.Context(), &ClaimRequest{
		Caller:     caller,
		UserIDs:    userIDs,
		FieldNames: payload.FieldNames,
	})
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusCreated, claimResponse{
		ClaimID:      uint64(result.Claim.ID),
		ResultHandle: result.Claim.Result.Hex(),
		UserCount:    result.Claim.UserCount,
		Cost:         result.Cost.String(),
		CreatedAt:    result.Claim.CreatedAt,
	})
	return nil
}

func (h *HTTP) getClaim(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "claimID")
	claimID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid claim id")
	}

	claim, err := h.service.GetClaim(r.Context(), claims.ClaimID(claimID))
	if err != nil {
		return err
	}

	h.writeJSON(w, http.StatusOK, claimResponse{
		ClaimID:      uint64(claim.ID),
		ResultHandle: claim.Result.Hex(),
		UserCount:    claim.UserCount,
		CreatedAt:    claim.CreatedAt,
	})
	return nil
}

func toIdentityResponse(record *identity.Record) identityResponse {
	fields := make(map[string]string, len(identity.Fields))
	for _, f := range identity.Fields {
		fields[string(f)] = record.Handle(f).Hex()
	}
	return identityResponse{
		UserID:       uint64(record.UserID),
		Fields:       fields,
		RegisteredAt: record.RegisteredAt,
	}
}

func parseUserID(raw string) (identity.UserID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.BadRequestError(err, "invalid user id")
	}
	return identity.UserID(id), nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
