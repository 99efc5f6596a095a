package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/dbx"
	"github.com/casanet/remote-server/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, mac string) (*models.ServerSession, error) {
	query :=
		`SELECT physical_address, hashed_key FROM servers_sessions
		 WHERE physical_address = $1
		 `

	s := &models.ServerSession{}
	err := r.db.QueryRowContext(ctx, query, mac).Scan(&s.PhysicalAddress, &s.HashedKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.ServerSession) error {
	query :=
		`INSERT INTO servers_sessions (physical_address, hashed_key)
		 VALUES ($1, $2)
		 ON CONFLICT (physical_address) DO UPDATE SET hashed_key = EXCLUDED.hashed_key
		 `

	if _, err := r.db.ExecContext(ctx, query, s.PhysicalAddress, s.HashedKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, mac string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM servers_sessions WHERE physical_address = $1`, mac); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
