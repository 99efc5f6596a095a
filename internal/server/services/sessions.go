package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/cryptox"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/casanet/remote-server/internal/server/repositories/repomanager"
)

// SessionService stores and verifies hashed local server keys.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	salt        string
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, salt string) *SessionService {
	return &SessionService{db: db, repomanager: m, salt: salt}
}

// Verify checks hashedKey against the stored key of mac. Unknown servers and
// mismatches both yield common.ErrorUnauthorized.
func (s *SessionService) Verify(ctx context.Context, mac, hashedKey string) error {
	session, err := s.repomanager.Sessions(s.db).Get(ctx, mac)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error reading session: %w", err)
	}

	if !cryptox.EqualHashes(session.HashedKey, hashedKey) {
		return common.ErrorUnauthorized
	}
	return nil
}

func (s *SessionService) SetSecret(ctx context.Context, mac, hashedKey string) error {
	err := s.repomanager.Sessions(s.db).Upsert(ctx, &models.ServerSession{PhysicalAddress: mac, HashedKey: hashedKey})
	if err != nil {
		return fmt.Errorf("error storing session: %w", err)
	}
	return nil
}

func (s *SessionService) DeleteSecret(ctx context.Context, mac string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, mac)
}

// GenerateKey issues a fresh auth key for mac, stores its hash and returns
// the plain key. It is shown once and never stored in clear.
func (s *SessionService) GenerateKey(ctx context.Context, mac string) (string, error) {
	if _, err := s.repomanager.Servers(s.db).Get(ctx, mac); err != nil {
		return "", err
	}

	key, err := cryptox.GenerateKey()
	if err != nil {
		return "", common.ErrorInternal
	}

	if err := s.SetSecret(ctx, mac, cryptox.HashKey(key, s.salt)); err != nil {
		return "", err
	}
	return key, nil
}
