package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minidb/config"
	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/storage_engine/engine"
	"go.uber.org/zap"
)

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.BackupDir = filepath.Join(dir, "backups")
	cfg.Storage.PoolSize = 3

	eng, err := engine.Open(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	require.NoError(t, eng.CreateDatabase("shop"))
	require.NoError(t, eng.UseDatabase(ctx, "shop"))
	require.NoError(t, eng.CreateTable("items", []catalog.FieldDef{
		{Name: "sku", Type: catalog.TypeInt, Primary: true},
		{Name: "label", Type: catalog.TypeChar, Length: 8},
	}))
	for i := 1; i <= 4; i++ {
		_, err := eng.Insert(ctx, "items", []string{fmt.Sprint(i), fmt.Sprintf("item%d", i)})
		require.NoError(t, err)
	}
	require.NoError(t, eng.CreateIndex(ctx, "items_sku", "items", "sku", 2))

	out := &bytes.Buffer{}
	return &shell{eng: eng, out: out}, out
}

func TestShell_Commands(t *testing.T) {
	s, out := newShell(t)
	ctx := context.Background()

	require.NoError(t, s.exec(ctx, []string{"databases"}))
	assert.Contains(t, out.String(), "* shop")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"tables"}))
	assert.Contains(t, out.String(), "items(sku int, label char(8))")
	assert.Contains(t, out.String(), "index items_sku on sku, 2 buckets")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"chains", "items"}))
	assert.Contains(t, out.String(), "items: record length 12")
	assert.Contains(t, out.String(), "free: []")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"select", "items", "sku", ">=", "3"}))
	assert.Contains(t, out.String(), "item3")
	assert.Contains(t, out.String(), "item4")
	assert.NotContains(t, out.String(), "item2")
	assert.Contains(t, out.String(), "(2 rows)")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"index", "items_sku"}))
	assert.Contains(t, out.String(), "index items_sku: 2 buckets")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"stats"}))
	assert.Contains(t, out.String(), "capacity=3")

	out.Reset()
	require.NoError(t, s.exec(ctx, []string{"backup"}))
	assert.Contains(t, out.String(), "items.rec")

	require.ErrorIs(t, s.exec(ctx, []string{"quit"}), errQuit)
}

func TestShell_Errors(t *testing.T) {
	s, _ := newShell(t)
	ctx := context.Background()

	require.Error(t, s.exec(ctx, []string{"nope"}))
	require.Error(t, s.exec(ctx, []string{"select", "items", "sku", ">="}))
	require.Error(t, s.exec(ctx, []string{"select", "items", "sku", "~", "1"}))
	require.ErrorIs(t, s.exec(ctx, []string{"chains", "missing"}), catalog.ErrTableNotFound)
	require.NoError(t, s.exec(ctx, nil))
}
