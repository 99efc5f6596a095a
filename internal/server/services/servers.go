// Package services contains server-side business logic over the
// repositories: local server records and their session keys.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/casanet/remote-server/internal/dbx"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/casanet/remote-server/internal/server/repositories/repomanager"
)

// ServerService manages local server records.
type ServerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewServerService(db *sql.DB, m repomanager.RepositoryManager) *ServerService {
	return &ServerService{db: db, repomanager: m, now: time.Now}
}

func (s *ServerService) Get(ctx context.Context, mac string) (*models.LocalServer, error) {
	return s.repomanager.Servers(s.db).Get(ctx, mac)
}

func (s *ServerService) List(ctx context.Context) ([]*models.LocalServer, error) {
	return s.repomanager.Servers(s.db).List(ctx)
}

func (s *ServerService) Create(ctx context.Context, server *models.LocalServer) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Servers(tx)
		if err := repo.Create(ctx, server); err != nil {
			return fmt.Errorf("error creating server: %w", err)
		}
		if len(server.ValidUsers) == 0 {
			return nil
		}
		return repo.SetUsers(ctx, server.PhysicalAddress, server.ValidUsers)
	})
}

func (s *ServerService) Update(ctx context.Context, server *models.LocalServer) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Servers(tx)
		if err := repo.Update(ctx, server); err != nil {
			return fmt.Errorf("error updating server: %w", err)
		}
		return repo.SetUsers(ctx, server.PhysicalAddress, server.ValidUsers)
	})
}

func (s *ServerService) Delete(ctx context.Context, mac string) error {
	if err := s.repomanager.Servers(s.db).Delete(ctx, mac); err != nil {
		return fmt.Errorf("error deleting server: %w", err)
	}
	return nil
}

// UpdateUsers replaces the authorized user list of a server atomically.
func (s *ServerService) UpdateUsers(ctx context.Context, mac string, users []string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Servers(tx).SetUsers(ctx, mac, users)
	})
}

func (s *ServerService) UpdateConnection(ctx context.Context, mac string) error {
	return s.repomanager.Servers(s.db).UpdateConnection(ctx, mac, s.now())
}

func (s *ServerService) UpdateDisconnection(ctx context.Context, mac string) error {
	return s.repomanager.Servers(s.db).UpdateDisconnection(ctx, mac, s.now())
}

func (s *ServerService) UpdateMeta(ctx context.Context, mac string, meta models.ServerMeta) error {
	return s.repomanager.Servers(s.db).UpdateMeta(ctx, mac, meta)
}
