package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
)

func studentsSchema() TableSchema {
	return TableSchema{
		Name: "students",
		Fields: []FieldDef{
			{Name: "id", Type: TypeInt, Primary: true},
			{Name: "name", Type: TypeChar, Length: 12},
			{Name: "gpa", Type: TypeFloat},
		},
	}
}

func TestCatalog_CreateTablePersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	c, err := CreateDatabase(dir, "school")
	require.NoError(t, err)

	ts, err := c.CreateTable(studentsSchema())
	require.NoError(t, err)
	assert.Equal(t, pagemanager.NoPage, ts.LiveHead)
	assert.Equal(t, pagemanager.NoPage, ts.FreeHead)
	assert.Equal(t, 20, ts.RecordLength())
	assert.Equal(t, 204, ts.MaxRecordsPerPage())

	ts.LiveHead, ts.PageCount = 3, 4
	require.NoError(t, c.Persist())

	reopened, err := Open(dir, "school")
	require.NoError(t, err)
	got, err := reopened.Table("STUDENTS")
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.LiveHead)
	assert.Equal(t, int32(4), got.PageCount)
	assert.Equal(t, 0, got.PrimaryKey())
	assert.Equal(t, []string{"students"}, reopened.Tables())

	dbs, err := ListDatabases(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"school"}, dbs)
}

func TestCatalog_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "missing")
	require.ErrorIs(t, err, ErrDatabaseNotFound)

	c, err := CreateDatabase(dir, "school")
	require.NoError(t, err)
	_, err = CreateDatabase(dir, "school")
	require.ErrorIs(t, err, ErrDatabaseExists)

	_, err = c.Table("students")
	require.ErrorIs(t, err, ErrTableNotFound)

	_, err = c.CreateTable(studentsSchema())
	require.NoError(t, err)
	_, err = c.CreateTable(studentsSchema())
	require.ErrorIs(t, err, ErrTableExists)

	twoKeys := studentsSchema()
	twoKeys.Name = "twokeys"
	twoKeys.Fields[2].Primary = true
	_, err = c.CreateTable(twoKeys)
	require.ErrorIs(t, err, ErrInvalidSchema)

	tooWide := TableSchema{Name: "wide", Fields: make([]FieldDef, 17)}
	for i := range tooWide.Fields {
		tooWide.Fields[i] = FieldDef{Name: string(rune('a' + i)), Type: TypeChar, Length: MaxCharLength}
	}
	_, err = c.CreateTable(tooWide)
	require.ErrorIs(t, err, ErrInvalidSchema)

	_, err = c.CreateTable(TableSchema{Name: "../escape", Fields: studentsSchema().Fields})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestCatalog_IndexLifecycle(t *testing.T) {
	c, err := CreateDatabase(t.TempDir(), "school")
	require.NoError(t, err)
	schema := studentsSchema()
	schema.Fields[1].Unique = true
	_, err = c.CreateTable(schema)
	require.NoError(t, err)

	def, err := c.CreateIndex(IndexDef{Name: "idx_id", Table: "students", Column: "ID", Buckets: 8})
	require.NoError(t, err)
	assert.Equal(t, "id", def.Column)
	assert.Equal(t, int32(8), def.PageCount, "bucket pages are allocated up front")

	_, err = c.CreateIndex(IndexDef{Name: "idx_id", Table: "students", Column: "name", Buckets: 8})
	require.ErrorIs(t, err, ErrIndexExists)
	_, err = c.CreateIndex(IndexDef{Name: "idx_gpa", Table: "students", Column: "gpa", Buckets: 8})
	require.ErrorIs(t, err, ErrIndexNotUnique)
	_, err = c.CreateIndex(IndexDef{Name: "idx_x", Table: "students", Column: "nope", Buckets: 8})
	require.ErrorIs(t, err, ErrColumnNotFound)
	_, err = c.CreateIndex(IndexDef{Name: "idx_name", Table: "students", Column: "name", Buckets: 4})
	require.NoError(t, err)

	ts, err := c.Table("students")
	require.NoError(t, err)
	assert.Len(t, ts.IndexesOn("name"), 1)

	found, owner, err := c.Index("idx_name")
	require.NoError(t, err)
	assert.Equal(t, "students", owner.Name)
	assert.Equal(t, int32(4), found.Buckets)

	dropped, err := c.DropIndex("idx_id")
	require.NoError(t, err)
	assert.Equal(t, "id", dropped.Column)
	_, _, err = c.Index("idx_id")
	require.ErrorIs(t, err, ErrIndexNotFound)
	_, err = c.DropIndex("idx_id")
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestCatalog_DropTableAndDatabase(t *testing.T) {
	dir := t.TempDir()
	c, err := CreateDatabase(dir, "school")
	require.NoError(t, err)
	_, err = c.CreateTable(studentsSchema())
	require.NoError(t, err)
	_, err = c.CreateIndex(IndexDef{Name: "idx_id", Table: "students", Column: "id", Buckets: 2})
	require.NoError(t, err)

	dropped, err := c.DropTable("STUDENTS")
	require.NoError(t, err)
	assert.Equal(t, "students", dropped.Name)
	require.Len(t, dropped.Indexes, 1)
	_, _, err = c.Index("idx_id")
	require.ErrorIs(t, err, ErrIndexNotFound)
	_, err = c.DropTable("students")
	require.ErrorIs(t, err, ErrTableNotFound)

	reopened, err := Open(dir, "school")
	require.NoError(t, err)
	assert.Empty(t, reopened.Tables())

	require.NoError(t, DropDatabase(dir, "school"))
	assert.NoDirExists(t, c.Dir())
	dbs, err := ListDatabases(dir)
	require.NoError(t, err)
	assert.Empty(t, dbs)
	require.ErrorIs(t, DropDatabase(dir, "school"), ErrDatabaseNotFound)
	require.ErrorIs(t, DropDatabase(dir, "../x"), ErrInvalidName)
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType(" CHAR ")
	require.NoError(t, err)
	assert.Equal(t, TypeChar, ft)
	_, err = ParseFieldType("blob")
	require.ErrorIs(t, err, ErrInvalidSchema)
}
