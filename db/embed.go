// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the idempotent DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Products is the JSON product catalog loaded by seed-db.
//
//go:embed seed/products.json
var Products []byte
