package service

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/cipherid/registry-middleware/pkg/app/errors"
	apphttp "github.com/cipherid/registry-middleware/pkg/app/http"
	"github.com/cipherid/registry-middleware/pkg/auth"
)

// adminHTTP serves the owner's capability administration endpoints. Admin
// calls are authenticated with a JWT issued to the operator; the service
// still enforces that mutations are attributed to the owner address.
type adminHTTP struct {
	service Service
	owner   common.Address
	logger  *zap.Logger
}

// RegisterAdminRoutes registers the JWT-protected admin endpoints.
func RegisterAdminRoutes(
	r chi.Router,
	service Service,
	jwtValidator *auth.JWTValidator,
	owner common.Address,
	logger *zap.Logger,
) {
	h := &adminHTTP{
		service: service,
		owner:   owner,
		logger:  logger,
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireJWT(jwtValidator, logger))
		r.Post("/registrars/{addr}", apphttp.HandleError(h.addRegistrar))
		r.Delete("/registrars/{addr}", apphttp.HandleError(h.removeRegistrar))
		r.Post("/whitelist/{addr}", apphttp.HandleError(h.addRequester))
		r.Delete("/whitelist/{addr}", apphttp.HandleError(h.removeRequester))
	})
}

// requireJWT rejects requests without a valid bearer token.
func requireJWT(v *auth.JWTValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || !v.IsConfigured() {
				apphttp.DefaultErrorHandler(w,
					apperrors.ForbiddenError(nil, "admin API is not configured"))
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				apphttp.DefaultErrorHandler(w,
					apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}

			claims, err := v.ValidateToken(token)
			if err != nil {
				logger.Warn("admin token rejected", zap.Error(err))
				apphttp.DefaultErrorHandler(w,
					apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}

			ctx := r.Context()
			if sub, ok := claims["sub"].(string); ok {
				ctx = auth.WithSubject(ctx, sub)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *adminHTTP) parseAddr(r *http.Request) (common.Address, error) {
	raw := chi.URLParam(r, "addr")
	if !auth.ValidateEVMAddress(raw) {
		return common.Address{}, apperrors.BadRequestError(nil, "invalid address")
	}
	return common.HexToAddress(raw), nil
}

func (h *adminHTTP) addRegistrar(w http.ResponseWriter, r *http.Request) error {
	addr, err := h.parseAddr(r)
	if err != nil {
		return err
	}
	if err := h.service.AddRegistrar(r.Context(), h.owner, addr); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *adminHTTP) removeRegistrar(w http.ResponseWriter, r *http.Request) error {
	addr, err := h.parseAddr(r)
	if err != nil {
		return err
	}
	if err := h.service.RemoveRegistrar(r.Context(), h.owner, addr); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *adminHTTP) addRequester(w http.ResponseWriter, r *http.Request) error {
	addr, err := h.parseAddr(r)
	if err != nil {
		return err
	}
	if err := h.service.AddRequester(r.Context(), h.owner, addr); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *adminHTTP) removeRequester(w http.ResponseWriter, r *http.Request) error {
	addr, err := h.parseAddr(r)
	if err != nil {
		return err
	}
	if err := h.service.RemoveRequester(r.Context(), h.owner, addr); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
