// Package api implements app.Runner for the registry API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/cipherid/registry-middleware/pkg/app/httpserver"
	"github.com/cipherid/registry-middleware/pkg/auth"
	"github.com/cipherid/registry-middleware/pkg/claims"
	"github.com/cipherid/registry-middleware/pkg/config"
	"github.com/cipherid/registry-middleware/pkg/events"
	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/fhe/lattice"
	"github.com/cipherid/registry-middleware/pkg/fhe/sealbox"
	"github.com/cipherid/registry-middleware/pkg/gateway"
	"github.com/cipherid/registry-middleware/pkg/idmapping"
	"github.com/cipherid/registry-middleware/pkg/ledger"
	"github.com/cipherid/registry-middleware/pkg/pgutil"
	registryservice "github.com/cipherid/registry-middleware/pkg/registry/service"
	"github.com/cipherid/registry-middleware/pkg/registrystore"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting registry API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("fhe_backend", cfg.FHE.Backend),
		zap.Bool("database", cfg.Database.Enabled),
	)

	var db *bun.DB
	if cfg.Database.Enabled {
		db, err = pgutil.ConnectDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer func() { _ = db.Close() }()
	}

	cop, err := s.openCoprocessor()
	if err != nil {
		return err
	}

	records, roles, grants, mappings, claimStore, recorder := buildStores(db, logger)

	executor := ledger.NewExecutor(db, recorder, logger)
	acl := fhe.NewACL(grants)

	owner := common.HexToAddress(cfg.Registry.OwnerAddress)
	registryAddr := common.HexToAddress(cfg.Registry.RegistryAddress)
	aggregatorAddr := common.HexToAddress(cfg.Registry.AggregatorAddress)

	costRate, err := cfg.Registry.CostRate()
	if err != nil {
		return err
	}

	aggregator := claims.NewService(
		aggregatorAddr,
		registryAddr,
		cop,
		acl,
		registryservice.NewFieldSource(records),
		claimStore,
		costRate,
	)

	registrySvc := registryservice.NewLog(
		registryservice.NewService(
			executor,
			records,
			roles,
			mappings,
			aggregator,
			cop,
			acl,
			owner,
			registryAddr,
			aggregatorAddr,
			costRate,
			logger,
		),
		logger,
	)

	mappingSvc := idmapping.NewService(mappings)
	gatewaySvc := gateway.NewService(cop, acl, logger)
	jwtValidator := auth.NewJWTValidator(cfg.JWKS.URL, cfg.JWKS.Issuer)

	router := s.setupRouter(registrySvc, gatewaySvc, mappingSvc, jwtValidator, owner, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout)
}

func (s *Server) openCoprocessor() (fhe.Coprocessor, error) {
	switch s.cfg.FHE.Backend {
	case config.BackendLattice:
		box, err := lattice.New()
		if err != nil {
			return nil, fmt.Errorf("create lattice coprocessor: %w", err)
		}
		return box, nil
	default:
		masterKey, err := s.cfg.FHE.MasterKeyBytes()
		if err != nil {
			return nil, err
		}
		box, err := sealbox.New(masterKey)
		if err != nil {
			return nil, fmt.Errorf("create sealbox coprocessor: %w", err)
		}
		return box, nil
	}
}

// buildStores picks the postgres stores when a database is configured and
// the journaled memory stores otherwise.
func buildStores(db *bun.DB, logger *zap.Logger) (
	registrystore.Store,
	registrystore.RoleStore,
	fhe.GrantStore,
	idmapping.Store,
	claims.Store,
	ledger.EventRecorder,
) {
	if db != nil {
		return registrystore.NewPgStore(db),
			registrystore.NewPgRoleStore(db),
			fhe.NewPgGrantStore(db),
			idmapping.NewPgStore(db),
			claims.NewPgStore(db),
			events.NewMulti(events.NewLogRecorder(logger), events.NewPgStore(db))
	}
	return registrystore.NewMemoryStore(),
		registrystore.NewMemoryRoleStore(),
		fhe.NewMemoryGrantStore(),
		idmapping.NewMemoryStore(),
		claims.NewMemoryStore(),
		events.NewMulti(events.NewLogRecorder(logger), events.NewMemoryStore())
}

func (s *Server) setupRouter(
	registrySvc registryservice.Service,
	gatewaySvc gateway.Service,
	mappingSvc idmapping.Service,
	jwtValidator *auth.JWTValidator,
	owner common.Address,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		registryservice.RegisterRoutes(r, registrySvc, logger)
		registryservice.RegisterAdminRoutes(r, registrySvc, jwtValidator, owner, logger)
		gateway.RegisterRoutes(r, gatewaySvc, logger)
		idmapping.RegisterRoutes(r, mappingSvc, logger)
	})

	return r
}
