package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetshare/internal/core"
)

func TestExporterUpsertKeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.Upsert(ctx, core.Transaction{ID: 2, Description: "v2", Version: 2}))
	require.NoError(t, e.Upsert(ctx, core.Transaction{ID: 2, Description: "v1", Version: 1}))
	require.NoError(t, e.Upsert(ctx, core.Transaction{ID: 1, Description: "other", Version: 1}))

	rows := e.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "v2", rows[1].Description)
}

func TestExporterDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.Upsert(ctx, core.Transaction{ID: 1, Version: 1}))

	require.NoError(t, e.Delete(ctx, 1))
	require.NoError(t, e.Delete(ctx, 1))
	assert.Empty(t, e.Rows())
}
