package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/claims"
	mghelper "github.com/cipherid/registry-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating claims table...")
		if err := mghelper.CreateSchema(ctx, db, &claims.ClaimDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &claims.ClaimDao{}, "requester")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping claims table...")
		return mghelper.DropTables(ctx, db, &claims.ClaimDao{})
	})
}
