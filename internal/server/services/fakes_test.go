package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/dbx"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/casanet/remote-server/internal/server/repositories/servers"
	"github.com/casanet/remote-server/internal/server/repositories/sessions"
	"github.com/stretchr/testify/require"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeServersRepo struct {
	servers map[string]*models.LocalServer

	createErr error
	updateErr error
	setErr    error

	lastConnection    time.Time
	lastDisconnection time.Time
	meta              models.ServerMeta
}

func newFakeServersRepo(list ...*models.LocalServer) *fakeServersRepo {
	f := &fakeServersRepo{servers: map[string]*models.LocalServer{}}
	for _, s := range list {
		f.servers[s.PhysicalAddress] = s
	}
	return f
}

func (f *fakeServersRepo) Get(_ context.Context, mac string) (*models.LocalServer, error) {
	s, ok := f.servers[mac]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeServersRepo) List(context.Context) ([]*models.LocalServer, error) {
	var out []*models.LocalServer
	for _, s := range f.servers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeServersRepo) Create(_ context.Context, s *models.LocalServer) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.servers[s.PhysicalAddress] = s
	return nil
}

func (f *fakeServersRepo) Update(_ context.Context, s *models.LocalServer) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.servers[s.PhysicalAddress]; !ok {
		return common.ErrorNotFound
	}
	f.servers[s.PhysicalAddress] = s
	return nil
}

func (f *fakeServersRepo) Delete(_ context.Context, mac string) error {
	if _, ok := f.servers[mac]; !ok {
		return common.ErrorNotFound
	}
	delete(f.servers, mac)
	return nil
}

func (f *fakeServersRepo) UpdateConnection(_ context.Context, _ string, at time.Time) error {
	f.lastConnection = at
	return nil
}

func (f *fakeServersRepo) UpdateDisconnection(_ context.Context, _ string, at time.Time) error {
	f.lastDisconnection = at
	return nil
}

func (f *fakeServersRepo) UpdateMeta(_ context.Context, _ string, meta models.ServerMeta) error {
	f.meta = meta
	return nil
}

func (f *fakeServersRepo) GetUsers(_ context.Context, mac string) ([]string, error) {
	return f.servers[mac].ValidUsers, nil
}

func (f *fakeServersRepo) SetUsers(_ context.Context, mac string, users []string) error {
	if f.setErr != nil {
		return f.setErr
	}
	if s, ok := f.servers[mac]; ok {
		s.ValidUsers = users
	}
	return nil
}

type fakeSessionsRepo struct {
	sessions map[string]string
	getErr   error
	upErr    error
}

func (f *fakeSessionsRepo) Get(_ context.Context, mac string) (*models.ServerSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	h, ok := f.sessions[mac]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.ServerSession{PhysicalAddress: mac, HashedKey: h}, nil
}

func (f *fakeSessionsRepo) Upsert(_ context.Context, s *models.ServerSession) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.sessions[s.PhysicalAddress] = s.HashedKey
	return nil
}

func (f *fakeSessionsRepo) Delete(_ context.Context, mac string) error {
	delete(f.sessions, mac)
	return nil
}

type fakeRepoManager struct {
	servers  *fakeServersRepo
	sessions *fakeSessionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Servers(dbx.DBTX) servers.Repository         { return m.servers }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository       { return m.sessions }
