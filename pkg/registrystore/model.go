package registrystore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/cipherid/registry-middleware/pkg/fhe"
	"github.com/cipherid/registry-middleware/pkg/identity"
)

// IdentityDao maps directly to the 'identities' table in PostgreSQL.
// A row's existence is the registered flag; the handle columns are the
// write-once ciphertext references.
type IdentityDao struct {
	bun.BaseModel   `bun:"table:identities,alias:i"`
	UserID          int64     `bun:"user_id,pk"`
	IDHandle        string    `bun:"id_handle,notnull,type:varchar(66)"`
	ScoreHandle     string    `bun:"score_handle,notnull,type:varchar(66)"`
	FirstnameHandle string    `bun:"firstname_handle,notnull,type:varchar(66)"`
	LastnameHandle  string    `bun:"lastname_handle,notnull,type:varchar(66)"`
	BirthdateHandle string    `bun:"birthdate_handle,notnull,type:varchar(66)"`
	RegisteredAt    time.Time `bun:"registered_at,nullzero,default:current_timestamp"`
}

// RoleDao maps directly to the 'roles' table in PostgreSQL.
type RoleDao struct {
	bun.BaseModel `bun:"table:roles,alias:r"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Address       string    `bun:"address,notnull,type:varchar(42)"`
	Role          string    `bun:"role,notnull,type:varchar(16)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

const (
	roleRegistrar = "registrar"
	roleRequester = "requester"
)

func toIdentityDao(record *identity.Record) *IdentityDao {
	return &IdentityDao{
		UserID:          int64(record.UserID),
		IDHandle:        record.ID.Hex(),
		ScoreHandle:     record.Score.Hex(),
		FirstnameHandle: record.Firstname.Hex(),
		LastnameHandle:  record.Lastname.Hex(),
		BirthdateHandle: record.Birthdate.Hex(),
		RegisteredAt:    record.RegisteredAt,
	}
}

func toRecord(dao *IdentityDao) (*identity.Record, error) {
	record := &identity.Record{
		UserID:       identity.UserID(dao.UserID),
		RegisteredAt: dao.RegisteredAt,
	}
	for _, field := range []struct {
		name string
		hex  string
		dst  *fhe.Handle
	}{
		{"id", dao.IDHandle, &record.ID},
		{"score", dao.ScoreHandle, &record.Score},
		{"firstname", dao.FirstnameHandle, &record.Firstname},
		{"lastname", dao.LastnameHandle, &record.Lastname},
		{"birthdate", dao.BirthdateHandle, &record.Birthdate},
	} {
		h, err := fhe.HandleFromHex(field.hex)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s handle for user %d: %w", field.name, dao.UserID, err)
		}
		*field.dst = h
	}
	return record, nil
}
