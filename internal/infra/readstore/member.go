package readstore

import (
	"context"

	"seatbridge/internal/infra"
	"seatbridge/internal/infra/db"

	"github.com/google/uuid"
)

// MemberReadStore checks member existence against the facility app's
// members table. The CRUD side of the application owns that table; this
// subsystem only reads it for validation.
type MemberReadStore struct {
	db db.DBTX
}

func NewMemberReadStore(dbtx db.DBTX) *MemberReadStore {
	return &MemberReadStore{db: dbtx}
}

func (r *MemberReadStore) Exists(ctx context.Context, memberID uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, memberID).Scan(&exists); err != nil {
		return false, infra.ClassifyPgErr("failed to check member existence", err)
	}

	return exists, nil
}
