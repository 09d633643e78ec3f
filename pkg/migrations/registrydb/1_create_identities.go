package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/cipherid/registry-middleware/pkg/pgutil/migrations"
	"github.com/cipherid/registry-middleware/pkg/registrystore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating identities table...")
		return mghelper.CreateSchema(ctx, db, &registrystore.IdentityDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping identities table...")
		return mghelper.DropTables(ctx, db, &registrystore.IdentityDao{})
	})
}
