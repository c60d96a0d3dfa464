// Package sqlite implements the brief store contracts on sqlite.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/thebrief/briefbot/internal/brief"
)

// Ensure Repo implements the full store surface
var _ brief.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// sqlite extended result code for a UNIQUE constraint violation.
const codeConstraintUnique = 2067
