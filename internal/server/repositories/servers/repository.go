package servers

import (
	"context"
	"time"

	"github.com/casanet/remote-server/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, mac string) (*models.LocalServer, error)
	List(ctx context.Context) ([]*models.LocalServer, error)
	Create(ctx context.Context, server *models.LocalServer) error
	Update(ctx context.Context, server *models.LocalServer) error
	Delete(ctx context.Context, mac string) error
	UpdateConnection(ctx context.Context, mac string, at time.Time) error
	UpdateDisconnection(ctx context.Context, mac string, at time.Time) error
	UpdateMeta(ctx context.Context, mac string, meta models.ServerMeta) error
	GetUsers(ctx context.Context, mac string) ([]string, error)
	SetUsers(ctx context.Context, mac string, users []string) error
}
