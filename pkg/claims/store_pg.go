package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/ledger"
)

// ClaimDao maps directly to the 'claims' table in PostgreSQL.
type ClaimDao struct {
	bun.BaseModel `bun:"table:claims,alias:c"`
	ID            int64           `bun:"id,pk"`
	ResultHandle  string          `bun:"result_handle,notnull,type:varchar(66)"`
	Requester     string          `bun:"requester,notnull,type:varchar(42)"`
	UserCount     int             `bun:"user_count,notnull"`
	Cost          decimal.Decimal `bun:"cost,notnull,type:numeric(38,18)"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
}

type pgStore struct {
	db *bun.DB
}

// NewPgStore creates a postgres-backed claim store.
func NewPgStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) conn(ctx context.Context) bun.IDB {
	if idb, ok := ledger.IDBFrom(ctx); ok {
		return idb
	}
	return s.db
}

// NextClaimID returns max(id)+1. The single-writer executor serializes claim
// creation, so the read-then-insert pair is race-free, and a rolled back
// transaction leaves no gap in the id sequence.
func (s *pgStore) NextClaimID(ctx context.Context) (ClaimID, error) {
	var last int64
	err := s.conn(ctx).NewSelect().
		Model((*ClaimDao)(nil)).
		ColumnExpr("COALESCE(MAX(id), 0)").
		Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("failed to read claim counter: %w", err)
	}
	return ClaimID(last) + 1, nil
}

func (s *pgStore) StoreClaim(ctx context.Context, claim *Claim) error {
	dao := &ClaimDao{
		ID:           int64(claim.ID),
		ResultHandle: claim.Result.Hex(),
		Requester:    claim.Requester.Hex(),
		UserCount:    claim.UserCount,
		Cost:         claim.Cost,
		CreatedAt:    claim.CreatedAt,
	}
	if _, err := s.conn(ctx).NewInsert().Model(dao).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store claim: %w", err)
	}
	return nil
}

func (s *pgStore) GetClaim(ctx context.Context, id ClaimID) (*Claim, error) {
	dao := new(ClaimDao)
	err := s.conn(ctx).NewSelect().
		Model(dao).
		Where("id = ?", int64(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownClaim
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	result, err := fhe.HandleFromHex(dao.ResultHandle)
	if err != nil {
		return nil, fmt.Errorf("corrupt result handle for claim %d: %w", dao.ID, err)
	}
	return &Claim{
		ID:        ClaimID(dao.ID),
		Result:    result,
		Requester: common.HexToAddress(dao.Requester),
		UserCount: dao.UserCount,
		Cost:      dao.Cost,
		CreatedAt: dao.CreatedAt,
	}, nil
}

func (s *pgStore) LastClaimID(ctx context.Context) (ClaimID, error) {
	var last int64
	err := s.conn(ctx).NewSelect().
		Model((*ClaimDao)(nil)).
		ColumnExpr("COALESCE(MAX(id), 0)").
		Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("failed to read claim counter: %w", err)
	}
	return ClaimID(last), nil
}
