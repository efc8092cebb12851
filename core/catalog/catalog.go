package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pagemanager "github.com/sushant-115/minidb/core/write_engine/page_manager"
)

// FileName is the catalog file kept in every database directory.
const FileName = "catalog.json"

// Catalog holds the metadata of one database and persists it to <dataDir>/<db>/catalog.json.
// Schemas handed out by Table are live: the record store edits chain heads and page counters
// in place and then calls Persist.
type Catalog struct {
	dataDir  string
	database string
	tables   map[string]*TableSchema
}

type catalogFile struct {
	Database string                  `json:"database"`
	Tables   map[string]*TableSchema `json:"tables"`
}

// CreateDatabase makes the database directory and an empty catalog.
func CreateDatabase(dataDir, name string) (*Catalog, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, name, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseExists, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir for %s: %w", name, err)
	}
	c := &Catalog{dataDir: dataDir, database: name, tables: make(map[string]*TableSchema)}
	if err := c.Persist(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open loads the catalog of an existing database.
func Open(dataDir, name string) (*Catalog, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, name, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
		}
		return nil, fmt.Errorf("failed to read catalog of %s: %w", name, err)
	}
	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog of %s: %w", name, err)
	}
	if cf.Tables == nil {
		cf.Tables = make(map[string]*TableSchema)
	}
	return &Catalog{dataDir: dataDir, database: name, tables: cf.Tables}, nil
}

// DropDatabase removes a database directory with its catalog and every page file in it.
// Open handles on those files must be closed first.
func DropDatabase(dataDir, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	dir := filepath.Join(dataDir, name)
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
		}
		return fmt.Errorf("failed to stat catalog of %s: %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove database %s: %w", name, err)
	}
	return nil
}

// ListDatabases returns the names of the databases under dataDir, sorted.
func ListDatabases(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dataDir, e.Name(), FileName)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Catalog) Database() string { return c.database }

// Dir is the directory holding this database's catalog and page files.
func (c *Catalog) Dir() string { return filepath.Join(c.dataDir, c.database) }

// Path is the location of the catalog file.
func (c *Catalog) Path() string { return filepath.Join(c.Dir(), FileName) }

// Persist writes the catalog through a temporary file and a rename.
func (c *Catalog) Persist() error {
	data, err := json.MarshalIndent(catalogFile{Database: c.database, Tables: c.tables}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog of %s: %w", c.database, err)
	}
	tmp := c.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog of %s: %w", c.database, err)
	}
	if err := os.Rename(tmp, c.Path()); err != nil {
		return fmt.Errorf("failed to install catalog of %s: %w", c.database, err)
	}
	return nil
}

// CreateTable registers a new, empty table.
func (c *Catalog) CreateTable(schema TableSchema) (*TableSchema, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}
	key := strings.ToLower(schema.Name)
	if _, ok := c.tables[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, schema.Name)
	}
	ts := &TableSchema{
		Name:     schema.Name,
		Fields:   append([]FieldDef(nil), schema.Fields...),
		LiveHead: pagemanager.NoPage,
		FreeHead: pagemanager.NoPage,
	}
	c.tables[key] = ts
	if err := c.Persist(); err != nil {
		delete(c.tables, key)
		return nil, err
	}
	return ts, nil
}

// Table returns the live schema of a table.
func (c *Catalog) Table(name string) (*TableSchema, error) {
	ts, ok := c.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return ts, nil
}

// DropTable forgets a table together with its index definitions and returns what was removed.
// The caller removes the page files.
func (c *Catalog) DropTable(name string) (TableSchema, error) {
	key := strings.ToLower(name)
	ts, ok := c.tables[key]
	if !ok {
		return TableSchema{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(c.tables, key)
	if err := c.Persist(); err != nil {
		c.tables[key] = ts
		return TableSchema{}, err
	}
	return *ts, nil
}

// Tables returns the table names, sorted.
func (c *Catalog) Tables() []string {
	out := make([]string, 0, len(c.tables))
	for _, ts := range c.tables {
		out = append(out, ts.Name)
	}
	sort.Strings(out)
	return out
}

// Index finds an index by name across all tables.
func (c *Catalog) Index(name string) (*IndexDef, *TableSchema, error) {
	for _, ts := range c.tables {
		for i := range ts.Indexes {
			if strings.EqualFold(ts.Indexes[i].Name, name) {
				return &ts.Indexes[i], ts, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
}

// CreateIndex records a new index over a primary key or unique column.
func (c *Catalog) CreateIndex(def IndexDef) (*IndexDef, error) {
	if err := validateName(def.Name); err != nil {
		return nil, err
	}
	if _, _, err := c.Index(def.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, def.Name)
	}
	ts, err := c.Table(def.Table)
	if err != nil {
		return nil, err
	}
	col := ts.Column(def.Column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, def.Table, def.Column)
	}
	if !ts.Fields[col].IsKey() {
		return nil, fmt.Errorf("%w: %s.%s", ErrIndexNotUnique, def.Table, def.Column)
	}
	if def.Buckets <= 0 {
		return nil, fmt.Errorf("%w: index %s needs at least one bucket", ErrInvalidSchema, def.Name)
	}
	def.Table = ts.Name
	def.Column = ts.Fields[col].Name
	def.PageCount = def.Buckets
	ts.Indexes = append(ts.Indexes, def)
	if err := c.Persist(); err != nil {
		ts.Indexes = ts.Indexes[:len(ts.Indexes)-1]
		return nil, err
	}
	return &ts.Indexes[len(ts.Indexes)-1], nil
}

// DropIndex forgets an index. The caller removes its page file.
func (c *Catalog) DropIndex(name string) (IndexDef, error) {
	for _, ts := range c.tables {
		for i := range ts.Indexes {
			if strings.EqualFold(ts.Indexes[i].Name, name) {
				def := ts.Indexes[i]
				ts.Indexes = append(ts.Indexes[:i], ts.Indexes[i+1:]...)
				return def, c.Persist()
			}
		}
	}
	return IndexDef{}, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
}
