package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/minidb/config"
	"github.com/sushant-115/minidb/core/catalog"
	"github.com/sushant-115/minidb/core/storage_engine/common"
	"github.com/sushant-115/minidb/core/storage_engine/record"
	"go.uber.org/zap"
)

var studentFields = []catalog.FieldDef{
	{Name: "id", Type: catalog.TypeInt, Primary: true},
	{Name: "name", Type: catalog.TypeChar, Length: 12, Unique: true},
	{Name: "gpa", Type: catalog.TypeFloat},
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.BackupDir = filepath.Join(dir, "backups")
	cfg.Storage.PoolSize = 4
	cfg.Storage.IndexBuckets = 5
	return cfg
}

func openEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	e, err := Open(cfg, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// newSchool opens an engine with a school database holding n students.
func newSchool(t *testing.T, cfg config.Config, n int) *Engine {
	t.Helper()
	ctx := context.Background()
	e := openEngine(t, cfg)
	require.NoError(t, e.CreateDatabase("school"))
	require.NoError(t, e.UseDatabase(ctx, "school"))
	require.NoError(t, e.CreateTable("students", studentFields))
	for i := 1; i <= n; i++ {
		_, err := e.Insert(ctx, "students", []string{fmt.Sprint(i), fmt.Sprintf("'s%03d'", i), "3.5"})
		require.NoError(t, err)
	}
	return e
}

func TestEngine_RequiresDatabase(t *testing.T) {
	e := openEngine(t, testConfig(t))

	_, err := e.Tables()
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = e.Insert(context.Background(), "students", []string{"1", "a", "1"})
	require.ErrorIs(t, err, ErrNoDatabase)
	require.ErrorIs(t, e.CreateTable("students", studentFields), ErrNoDatabase)
	_, err = e.Backup(context.Background())
	require.ErrorIs(t, err, ErrNoDatabase)

	require.ErrorIs(t, e.UseDatabase(context.Background(), "missing"), catalog.ErrDatabaseNotFound)
	assert.Empty(t, e.Database())
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.PoolSize = 0
	_, err := Open(cfg, nil, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngine_InsertFillsPagesThenMints(t *testing.T) {
	e := newSchool(t, testConfig(t), 205)

	info, err := e.Chains(context.Background(), "students")
	require.NoError(t, err)
	assert.Equal(t, 20, info.RecordLength)
	assert.Equal(t, 204, info.MaxRecordsPerPage)
	require.Len(t, info.Live, 2)
	assert.Equal(t, record.ChainPage{Page: 1, Prev: -1, Next: 0, Count: 1}, info.Live[0])
	assert.Equal(t, record.ChainPage{Page: 0, Prev: 1, Next: -1, Count: 204}, info.Live[1])
	assert.Empty(t, info.Free)

	dbs, err := e.Databases()
	require.NoError(t, err)
	assert.Equal(t, []string{"school"}, dbs)
	tables, err := e.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"students"}, tables)
}

func TestEngine_CreateIndexBackfillsExistingRecords(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 205)
	ctx := context.Background()

	require.NoError(t, e.CreateIndex(ctx, "students_id", "students", "id", 0))
	ts, err := e.Schema("students")
	require.NoError(t, err)
	require.Len(t, ts.Indexes, 1)
	assert.Equal(t, int32(5), ts.Indexes[0].Buckets)

	rows, err := e.Select(ctx, "students", []record.Predicate{{Column: "id", Op: record.OpEq, Operand: "150"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s150", rows[0][1].Str)

	// the record on the minted page is found through the index too
	rows, err = e.Select(ctx, "students", []record.Predicate{{Column: "id", Op: record.OpEq, Operand: "205"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var out bytes.Buffer
	require.NoError(t, e.PrintIndex("students_id", &out))
	assert.True(t, strings.HasPrefix(out.String(), "index students_id: 5 buckets"), out.String())
	assert.FileExists(t, filepath.Join(cfg.Storage.DataDir, "school", "students_id.idx"))

	_, err = e.Insert(ctx, "students", []string{"150", "'other'", "1"})
	require.ErrorIs(t, err, record.ErrPrimaryKeyConflict)
}

func TestEngine_CreateIndexRejects(t *testing.T) {
	e := newSchool(t, testConfig(t), 3)
	ctx := context.Background()

	require.ErrorIs(t, e.CreateIndex(ctx, "by_gpa", "students", "gpa", 0), catalog.ErrIndexNotUnique)
	require.ErrorIs(t, e.CreateIndex(ctx, "by_x", "students", "x", 0), catalog.ErrColumnNotFound)
	require.NoError(t, e.CreateIndex(ctx, "by_name", "students", "name", 3))
	require.ErrorIs(t, e.CreateIndex(ctx, "by_name", "students", "id", 3), catalog.ErrIndexExists)
}

func TestEngine_DropIndexRemovesFile(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 10)
	ctx := context.Background()

	require.NoError(t, e.CreateIndex(ctx, "by_name", "students", "name", 3))
	path := filepath.Join(cfg.Storage.DataDir, "school", "by_name.idx")
	require.FileExists(t, path)

	require.NoError(t, e.DropIndex(ctx, "by_name"))
	assert.NoFileExists(t, path)
	require.ErrorIs(t, e.PrintIndex("by_name", &bytes.Buffer{}), catalog.ErrIndexNotFound)

	rows, err := e.Select(ctx, "students", []record.Predicate{{Column: "name", Op: record.OpEq, Operand: "s007"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int32(7), rows[0][0].Int)
}

func TestEngine_DeleteAndUpdate(t *testing.T) {
	e := newSchool(t, testConfig(t), 20)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "students_id", "students", "id", 0))

	n, err := e.Delete(ctx, "students", []record.Predicate{{Column: "id", Op: record.OpLe, Operand: "5"}})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = e.Update(ctx, "students",
		[]record.Assignment{{Column: "gpa", Value: "4"}},
		[]record.Predicate{{Column: "id", Op: record.OpGt, Operand: "15"}})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rows, err := e.Select(ctx, "students", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 15)

	rows, err = e.Select(ctx, "students", []record.Predicate{{Column: "id", Op: record.OpEq, Operand: "18"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float32(4), rows[0][2].Float)
}

func TestEngine_ReopenKeepsRecords(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 250)
	require.NoError(t, e.CreateIndex(context.Background(), "students_id", "students", "id", 0))
	require.NoError(t, e.Close())

	e2 := openEngine(t, cfg)
	ctx := context.Background()
	require.NoError(t, e2.UseDatabase(ctx, "school"))
	assert.Equal(t, "school", e2.Database())

	rows, err := e2.Select(ctx, "students", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 250)

	rows, err = e2.Select(ctx, "students", []record.Predicate{{Column: "id", Op: record.OpEq, Operand: "240"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s240", rows[0][1].Str)
}

func TestEngine_BackupCopiesDatabaseFiles(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 30)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "students_id", "students", "id", 0))

	info, err := e.Backup(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(info.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Storage.BackupDir, "school-"+info.ID), info.Dir)

	var names []string
	for _, f := range info.Files {
		names = append(names, f.Name)
		src, err := common.FileChecksum(filepath.Join(cfg.Storage.DataDir, "school", f.Name))
		require.NoError(t, err)
		assert.Equal(t, src, f.SHA256, f.Name)

		st, err := os.Stat(filepath.Join(info.Dir, f.Name))
		require.NoError(t, err)
		assert.Equal(t, st.Size(), f.Bytes)
	}
	assert.Equal(t, []string{catalog.FileName, "students.rec", "students_id.idx"}, names)
	assert.Positive(t, info.Bytes())

	// a second backup never reuses the first one's directory
	again, err := e.Backup(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, info.Dir, again.Dir)
}

func TestEngine_DropTableReturnsPagesToPool(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 300)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "students_id", "students", "id", 0))

	st := e.Stats()
	require.Equal(t, 0, st.Free, "a 4-page pool is full after 300 inserts and an index build")

	require.NoError(t, e.DropTable(ctx, "Students"))
	st = e.Stats()
	assert.Equal(t, st.Capacity, st.Free)
	assert.Equal(t, 0, st.Resident)
	assert.NoFileExists(t, filepath.Join(cfg.Storage.DataDir, "school", "students.rec"))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.DataDir, "school", "students_id.idx"))

	tables, err := e.Tables()
	require.NoError(t, err)
	assert.Empty(t, tables)
	_, err = e.Select(ctx, "students", nil)
	require.ErrorIs(t, err, catalog.ErrTableNotFound)
	require.ErrorIs(t, e.DropTable(ctx, "students"), catalog.ErrTableNotFound)
	require.ErrorIs(t, e.PrintIndex("students_id", &bytes.Buffer{}), catalog.ErrIndexNotFound)

	// a new table under the same name gets a fresh layout and fresh pages
	require.NoError(t, e.CreateTable("students", []catalog.FieldDef{{Name: "id", Type: catalog.TypeInt, Primary: true}}))
	_, err = e.Insert(ctx, "students", []string{"7"})
	require.NoError(t, err)
	info, err := e.Chains(ctx, "students")
	require.NoError(t, err)
	assert.Equal(t, 4, info.RecordLength)
	require.Len(t, info.Live, 1)
	assert.Equal(t, 1, info.Live[0].Count)
}

func TestEngine_DropDatabase(t *testing.T) {
	cfg := testConfig(t)
	e := newSchool(t, cfg, 250)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "students_id", "students", "id", 0))
	require.NoError(t, e.CreateDatabase("other"))

	require.NoError(t, e.DropDatabase(ctx, "school"))
	st := e.Stats()
	assert.Equal(t, st.Capacity, st.Free)
	assert.NoDirExists(t, filepath.Join(cfg.Storage.DataDir, "school"))
	assert.Empty(t, e.Database())
	_, err := e.Tables()
	require.ErrorIs(t, err, ErrNoDatabase)

	dbs, err := e.Databases()
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, dbs)
	require.ErrorIs(t, e.DropDatabase(ctx, "school"), catalog.ErrDatabaseNotFound)

	// the name can be reused
	require.NoError(t, e.CreateDatabase("school"))
	require.NoError(t, e.UseDatabase(ctx, "school"))
	tables, err := e.Tables()
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestEngine_CloseRejectsLaterCalls(t *testing.T) {
	e := newSchool(t, testConfig(t), 1)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Tables()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, e.UseDatabase(context.Background(), "school"), ErrClosed)
}
