// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/booksync/internal/persistence/sqlite"
)

func TestIsUniqueViolation(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "codes.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE t (id TEXT PRIMARY KEY, k TEXT UNIQUE, v TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t (id, k, v) VALUES ('a', 'x', 'v')`)
	require.NoError(t, err)

	_, dupKey := db.ExecContext(ctx, `INSERT INTO t (id, k, v) VALUES ('b', 'x', 'v')`)
	require.Error(t, dupKey)
	_, dupPK := db.ExecContext(ctx, `INSERT INTO t (id, k, v) VALUES ('a', 'y', 'v')`)
	require.Error(t, dupPK)
	_, notNull := db.ExecContext(ctx, `INSERT INTO t (id, k, v) VALUES ('c', 'z', NULL)`)
	require.Error(t, notNull)

	assert.True(t, isUniqueViolation(dupKey))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dupKey)))
	assert.True(t, isUniqueViolation(dupPK))
	assert.False(t, isUniqueViolation(notNull))
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed: t.k")))
	assert.False(t, isUniqueViolation(nil))
}
