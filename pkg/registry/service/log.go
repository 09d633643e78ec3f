package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

const serviceName = "RegistryService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the registry Service.
// It logs method entry/exit, duration and errors. Ciphertexts and proofs are
// never logged; only their handles appear.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) log(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

func (ls *logService) RegisterIdentity(
	ctx context.Context,
	req *RegisterRequest,
) (record *identity.Record, err error) {
	start := time.Now()
	ls.logger.Info("RegisterIdentity started",
		zap.String("service", serviceName),
		zap.Uint64("user_id", uint64(req.UserID)),
		zap.String("caller", req.Caller.Hex()),
	)
	defer func() {
		ls.log("RegisterIdentity", start, err,
			zap.Uint64("user_id", uint64(req.UserID)),
			zap.String("caller", req.Caller.Hex()),
		)
	}()
	return ls.svc.RegisterIdentity(ctx, req)
}

func (ls *logService) GetIdentity(
	ctx context.Context,
	userID identity.UserID,
) (record *identity.Record, err error) {
	start := time.Now()
	defer func() { ls.log("GetIdentity", start, err, zap.Uint64("user_id", uint64(userID))) }()
	return ls.svc.GetIdentity(ctx, userID)
}

func (ls *logService) GetField(
	ctx context.Context,
	userID identity.UserID,
	fieldName string,
) (h fhe.Handle, err error) {
	start := time.Now()
	defer func() {
		ls.log("GetField", start, err,
			zap.Uint64("user_id", uint64(userID)),
			zap.String("field", fieldName),
		)
	}()
	return ls.svc.GetField(ctx, userID, fieldName)
}

func (ls *logService) GenerateClaim(
	ctx context.Context,
	req *ClaimRequest,
) (result *ClaimResult, err error) {
	start := time.Now()
	ls.logger.Info("GenerateClaim started",
		zap.String("service", serviceName),
		zap.String("caller", req.Caller.Hex()),
		zap.Int("user_count", len(req.UserIDs)),
		zap.Strings("fields", req.FieldNames),
	)
	defer func() {
		fields := []zap.Field{
			zap.String("caller", req.Caller.Hex()),
			zap.Int("user_count", len(req.UserIDs)),
		}
		if err == nil {
			fields = append(fields,
				zap.Uint64("claim_id", uint64(result.Claim.ID)),
				zap.String("cost", result.Cost.String()),
			)
		}
		ls.log("GenerateClaim", start, err, fields...)
	}()
	return ls.svc.GenerateClaim(ctx, req)
}

func (ls *logService) GetClaim(
	ctx context.Context,
	claimID claims.ClaimID,
) (claim *claims.Claim, err error) {
	start := time.Now()
	defer func() { ls.log("GetClaim", start, err, zap.Uint64("claim_id", uint64(claimID))) }()
	return ls.svc.GetClaim(ctx, claimID)
}

func (ls *logService) AddRegistrar(ctx context.Context, caller, addr common.Address) (err error) {
	start := time.Now()
	defer func() { ls.log("AddRegistrar", start, err, zap.String("address", addr.Hex())) }()
	return ls.svc.AddRegistrar(ctx, caller, addr)
}

func (ls *logService) RemoveRegistrar(ctx context.Context, caller, addr common.Address) (err error) {
	start := time.Now()
	defer func() { ls.log("RemoveRegistrar", start, err, zap.String("address", addr.Hex())) }()
	return ls.svc.RemoveRegistrar(ctx, caller, addr)
}

func (ls *logService) AddRequester(ctx context.Context, caller, addr common.Address) (err error) {
	start := time.Now()
	defer func() { ls.log("AddRequester", start, err, zap.String("address", addr.Hex())) }()
	return ls.svc.AddRequester(ctx, caller, addr)
}

func (ls *logService) RemoveRequester(ctx context.Context, caller, addr common.Address) (err error) {
	start := time.Now()
	defer func() { ls.log("RemoveRequester", start, err, zap.String("address", addr.Hex())) }()
	return ls.svc.RemoveRequester(ctx, caller, addr)
}
