package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyThrottled_CopiesAndVerifies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "students.rec")
	data := bytes.Repeat([]byte("minidb page "), 3000)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dst := filepath.Join(dir, "copy.rec")
	res, err := CopyThrottled(context.Background(), src, dst, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Bytes)

	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), res.SHA256)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyThrottled_RateLimitedCopyIsComplete(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "catalog.json")
	data := bytes.Repeat([]byte{7}, 10_000)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	// the burst is capped at the rate, so the file goes through in two limited chunks
	res, err := CopyThrottled(context.Background(), src, filepath.Join(dir, "out.json"), 8192, false)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Empty(t, res.SHA256)
}

func TestCopyThrottled_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.rec")
	require.NoError(t, os.WriteFile(src, make([]byte, 64*1024), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CopyThrottled(ctx, src, filepath.Join(dir, "out.rec"), 1024, false)
	require.Error(t, err)
}

func TestCopyThrottled_MissingSource(t *testing.T) {
	_, err := CopyThrottled(context.Background(), filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "out"), 0, false)
	require.ErrorIs(t, err, os.ErrNotExist)
}
