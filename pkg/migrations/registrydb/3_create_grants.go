package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	mghelper "github.com/cipherid/registry-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating grants table...")
		if err := mghelper.CreateSchema(ctx, db, &fhe.GrantDao{}); err != nil {
			return err
		}
		// Grants are idempotent: inserts upsert on (handle, grantee).
		_, err := db.NewCreateIndex().
			Model(&fhe.GrantDao{}).
			Index("idx_grants_handle_grantee").
			Column("handle", "grantee").
			Unique().
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping grants table...")
		return mghelper.DropTables(ctx, db, &fhe.GrantDao{})
	})
}
