package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redminetogithub/config"
)

func TestFileLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "migrated.txt")

	ledger := NewFileLedger(path)
	require.NoError(t, ledger.Load(ctx))
	assert.Equal(t, 0, ledger.Len())

	require.NoError(t, ledger.Record(ctx, 42))
	require.NoError(t, ledger.Record(ctx, 7))
	require.NoError(t, ledger.Record(ctx, 42))
	require.NoError(t, ledger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42\n7\n", string(data))

	reloaded := NewFileLedger(path)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Contains(42))
	assert.True(t, reloaded.Contains(7))
	assert.False(t, reloaded.Contains(8))
	assert.Equal(t, 2, reloaded.Len())
}

func TestFileLedgerRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrated.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n\n2\nabc\n"), 0644))

	err := NewFileLedger(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 行目")
}

func TestFileLedgerAppendsAfterUnterminatedLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "migrated.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n2"), 0644))

	ledger := NewFileLedger(path)
	require.NoError(t, ledger.Load(ctx))
	require.NoError(t, ledger.Record(ctx, 3))
	require.NoError(t, ledger.Record(ctx, 4))
	require.NoError(t, ledger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n", string(data))

	reloaded := NewFileLedger(path)
	require.NoError(t, reloaded.Load(ctx))
	for _, id := range []int{1, 2, 3, 4} {
		assert.True(t, reloaded.Contains(id), "id %d", id)
	}
	assert.False(t, reloaded.Contains(23))
	assert.Equal(t, 4, reloaded.Len())
}

func TestSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	ledger, err := NewSQLiteLedger(path)
	require.NoError(t, err)
	require.NoError(t, ledger.Load(ctx))
	require.NoError(t, ledger.Record(ctx, 5))
	require.NoError(t, ledger.Record(ctx, 5))
	require.NoError(t, ledger.Close())

	reloaded, err := NewSQLiteLedger(path)
	require.NoError(t, err)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Contains(5))
	assert.Equal(t, 1, reloaded.Len())
}

func TestOpenLedger(t *testing.T) {
	dir := t.TempDir()

	l, err := OpenLedger(&config.Config{LedgerBackend: "file", LedgerPath: filepath.Join(dir, "a.txt")})
	require.NoError(t, err)
	assert.IsType(t, &FileLedger{}, l)

	l, err = OpenLedger(&config.Config{LedgerBackend: "sqlite", LedgerPath: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteLedger{}, l)
	require.NoError(t, l.Close())

	_, err = OpenLedger(&config.Config{LedgerBackend: "redis"})
	assert.Error(t, err)
}
