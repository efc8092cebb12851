package catalog

import "errors"

var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrDatabaseExists   = errors.New("database already exists")
	ErrTableNotFound    = errors.New("table not found")
	ErrTableExists      = errors.New("table already exists")
	ErrColumnNotFound   = errors.New("column not found")
	ErrIndexNotFound    = errors.New("index not found")
	ErrIndexExists      = errors.New("index already exists")
	ErrIndexNotUnique   = errors.New("index column must be the primary key or unique")
	ErrInvalidSchema    = errors.New("invalid table schema")
	ErrInvalidName      = errors.New("invalid name")
)
