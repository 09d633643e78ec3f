package registrydb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/events"
	mghelper "github.com/cipherid/registry-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating events table...")
		if err := mghelper.CreateSchema(ctx, db, &events.EventDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &events.EventDao{}, "name")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping events table...")
		return mghelper.DropTables(ctx, db, &events.EventDao{})
	})
}
