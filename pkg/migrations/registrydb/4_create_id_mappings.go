package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/idmapping"
	mghelper "github.com/cipherid/registry-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating id_mappings table...")
		if err := mghelper.CreateSchema(ctx, db, &idmapping.MappingDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelUniqueIndexes(ctx, db, &idmapping.MappingDao{}, "address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping id_mappings table...")
		return mghelper.DropTables(ctx, db, &idmapping.MappingDao{})
	})
}
