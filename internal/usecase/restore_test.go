package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
	"github.com/eliteGoblin/focusd/bgmute/test/fixtures"
)

// TestRestore_EmptyLedger verifies nothing is enumerated when nothing was muted
func TestRestore_EmptyLedger(t *testing.T) {
	p := fixtures.NewFakePlatform()
	ledger := fixtures.NewMemoryLedger()

	res, err := NewRestorer(p, ledger, zap.NewNop()).Restore(context.Background())

	require.NoError(t, err)
	assert.Empty(t, res.Unmuted)
	assert.Zero(t, p.ListCalls())
}

// TestRestore_UnmutesRecordedSessions verifies crash recovery
func TestRestore_UnmutesRecordedSessions(t *testing.T) {
	p := fixtures.NewFakePlatform()
	ledger := fixtures.NewMemoryLedger()

	game := p.AddSession(10, "Game.exe")
	game.SetExternally(true)
	userMuted := p.AddSession(20, "podcast.exe")
	userMuted.SetExternally(true)
	playing := p.AddSession(30, "music.exe")

	// A previous run muted game.exe (different pid) and music.exe.
	require.NoError(t, ledger.RecordMuted(domain.ProcessIdentity{PID: 99, ExeName: "game.exe"}))
	require.NoError(t, ledger.RecordMuted(domain.ProcessIdentity{PID: 30, ExeName: "music.exe"}))

	res, err := NewRestorer(p, ledger, zap.NewNop()).Restore(context.Background())

	require.NoError(t, err)
	assert.Len(t, res.Recorded, 2)
	require.Len(t, res.Unmuted, 1)
	assert.Equal(t, "Game.exe", res.Unmuted[0].ExeName)
	assert.False(t, game.Muted())
	assert.True(t, userMuted.Muted(), "sessions not in the ledger are left alone")
	assert.Empty(t, playing.Calls(), "already unmuted sessions are not touched")

	records, _ := ledger.List()
	assert.Empty(t, records)
}

// TestRestore_KeepsLedgerOnFailure verifies a failed unmute can be retried
func TestRestore_KeepsLedgerOnFailure(t *testing.T) {
	p := fixtures.NewFakePlatform()
	ledger := fixtures.NewMemoryLedger()
	h := p.AddSession(10, "game.exe")
	h.SetExternally(true)
	h.FailNext(1)
	require.NoError(t, ledger.RecordMuted(domain.ProcessIdentity{PID: 10, ExeName: "game.exe"}))

	res, err := NewRestorer(p, ledger, zap.NewNop()).Restore(context.Background())

	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	records, _ := ledger.List()
	assert.Len(t, records, 1)
}

// TestRestore_ListError verifies enumeration errors are returned
func TestRestore_ListError(t *testing.T) {
	p := fixtures.NewFakePlatform()
	p.FailList(errors.New("no audio"))
	ledger := fixtures.NewMemoryLedger()
	require.NoError(t, ledger.RecordMuted(domain.ProcessIdentity{PID: 10, ExeName: "game.exe"}))

	_, err := NewRestorer(p, ledger, zap.NewNop()).Restore(context.Background())

	assert.Error(t, err)
}
