package sessions

import (
	"context"

	"github.com/casanet/remote-server/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, mac string) (*models.ServerSession, error)
	Upsert(ctx context.Context, session *models.ServerSession) error
	Delete(ctx context.Context, mac string) error
}
