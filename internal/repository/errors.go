// Package repository implements the persistence gateway over MySQL. Each
// aggregate gets one repo struct holding the shared *sql.DB. Sentinel
// errors let services and handlers distinguish failure scenarios without
// inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key rejects an insert, e.g. a
// second upvote by the same user or a taken username/email/phone.
var ErrDuplicate = errors.New("duplicate")

// isDup reports whether err is a MySQL duplicate-key violation (code 1062).
func isDup(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// notFound converts sql.ErrNoRows into ErrNotFound, passing other errors
// through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Small query-building helpers shared by the repos.

func lower(s string) string { return strings.ToLower(s) }

func join(parts []string, sep string) string { return strings.Join(parts, sep) }

// prefixCols rewrites "a, b, c" into "p.a, p.b, p.c" for joined selects.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
