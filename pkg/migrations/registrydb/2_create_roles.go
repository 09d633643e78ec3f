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
		log.Println("creating roles table...")
		if err := mghelper.CreateSchema(ctx, db, &registrystore.RoleDao{}); err != nil {
			return err
		}
		// Role membership is checked and upserted by (address, role).
		_, err := db.NewCreateIndex().
			Model(&registrystore.RoleDao{}).
			Index("idx_roles_address_role").
			Column("address", "role").
			Unique().
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping roles table...")
		return mghelper.DropTables(ctx, db, &registrystore.RoleDao{})
	})
}
