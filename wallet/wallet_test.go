package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypergrid-io/hypergrid/internal/kvstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	kv := kvstore.NewInMemory()
	t.Cleanup(func() { kv.Close() })
	m, err := NewManager(kv)
	require.NoError(t, err)
	return m
}

func TestGenerateSelectsFirstWallet(t *testing.T) {
	m := newTestManager(t)
	w, err := m.Generate("first", "")
	require.NoError(t, err)

	summaries, selected := m.ListSummaries()
	require.Len(t, summaries, 1)
	require.Equal(t, w.ID, selected)
}

func TestImportExportRoundTripsPlaintext(t *testing.T) {
	source := newTestManager(t)
	generated, err := source.Generate("a", "")
	require.NoError(t, err)

	m := newTestManager(t)
	w, err := m.Import(generated.Storage.PlainHex, "a", "")
	require.NoError(t, err)
	require.Equal(t, generated.ID, w.ID)

	exported, err := m.ExportPrivateKey(w.ID, "")
	require.NoError(t, err)
	require.Equal(t, generated.Storage.PlainHex, exported)
}

func TestSetPasswordThenWrongPasswordFails(t *testing.T) {
	m := newTestManager(t)
	w, err := m.Generate("a", "")
	require.NoError(t, err)
	plainHex := w.Storage.PlainHex

	require.NoError(t, m.SetPassword(w.ID, "correct-horse"))

	_, err = m.ExportPrivateKey(w.ID, "wrong-password")
	require.ErrorIs(t, err, ErrWrongPassword)

	exported, err := m.ExportPrivateKey(w.ID, "correct-horse")
	require.NoError(t, err)
	require.Equal(t, plainHex, exported)
}

func TestDeleteLastWalletRefused(t *testing.T) {
	m := newTestManager(t)
	w, err := m.Generate("only", "")
	require.NoError(t, err)

	err = m.Delete(w.ID)
	require.ErrorIs(t, err, ErrLastWallet)
}

func TestActivateCachesSignerInMemoryOnly(t *testing.T) {
	m := newTestManager(t)
	w, err := m.Generate("a", "secret")
	require.NoError(t, err)

	_, err = m.Signer(w.ID)
	require.ErrorIs(t, err, ErrPasswordNeeded)

	require.NoError(t, m.Activate(w.ID, "secret"))
	_, err = m.Signer(w.ID)
	require.NoError(t, err)
}
