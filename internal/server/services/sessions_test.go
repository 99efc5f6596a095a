package services

import (
	"context"
	"testing"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/cryptox"
	"github.com/casanet/remote-server/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(t *testing.T, sessions *fakeSessionsRepo, list ...*models.LocalServer) *SessionService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	return NewSessionService(db, &fakeRepoManager{servers: newFakeServersRepo(list...), sessions: sessions}, "salt")
}

func TestSessionService_Verify(t *testing.T) {
	repo := &fakeSessionsRepo{sessions: map[string]string{mac: cryptox.HashKey("key", "salt")}}
	s := newSessionService(t, repo)
	ctx := context.Background()

	assert.NoError(t, s.Verify(ctx, mac, cryptox.HashKey("key", "salt")))
	assert.ErrorIs(t, s.Verify(ctx, mac, cryptox.HashKey("bad", "salt")), common.ErrorUnauthorized)
	assert.ErrorIs(t, s.Verify(ctx, "ghost", cryptox.HashKey("key", "salt")), common.ErrorUnauthorized)
}

func TestSessionService_Verify_StoreError(t *testing.T) {
	s := newSessionService(t, &fakeSessionsRepo{getErr: errBoom{}})

	err := s.Verify(context.Background(), mac, "h")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorUnauthorized)
	assert.Contains(t, err.Error(), "boom")
}

func TestSessionService_GenerateKey(t *testing.T) {
	repo := &fakeSessionsRepo{sessions: map[string]string{}}
	s := newSessionService(t, repo, &models.LocalServer{PhysicalAddress: mac})

	key, err := s.GenerateKey(context.Background(), mac)
	require.NoError(t, err)
	assert.Len(t, key, cryptox.KeyLength)
	assert.Equal(t, cryptox.HashKey(key, "salt"), repo.sessions[mac])

	require.NoError(t, s.Verify(context.Background(), mac, cryptox.HashKey(key, "salt")))
}

func TestSessionService_GenerateKey_UnknownServer(t *testing.T) {
	s := newSessionService(t, &fakeSessionsRepo{sessions: map[string]string{}})

	_, err := s.GenerateKey(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSessionService_SetAndDeleteSecret(t *testing.T) {
	repo := &fakeSessionsRepo{sessions: map[string]string{}}
	s := newSessionService(t, repo)
	ctx := context.Background()

	require.NoError(t, s.SetSecret(ctx, mac, "h"))
	assert.Equal(t, "h", repo.sessions[mac])

	require.NoError(t, s.DeleteSecret(ctx, mac))
	assert.NotContains(t, repo.sessions, mac)

	repo.upErr = errBoom{}
	err := s.SetSecret(ctx, mac, "h")
	assert.Regexp(t, `error storing session: .*boom`, err.Error())
}
