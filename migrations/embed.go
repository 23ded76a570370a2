// Package migrations provides the embedded SQL schema for the messaging
// subsystem.
package migrations

import "embed"

// Files contains all .sql files in this directory (order matters: 001, 002, ...).
//
//go:embed *.sql
var Files embed.FS
