package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/models"
)

func TestOpenMigrateSeed(t *testing.T) {
	db, err := Open(config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	// idempotent
	require.NoError(t, Migrate(db))

	var seq models.OrderSequence
	require.NoError(t, db.First(&seq, "name = ?", models.OrderNumberSequence).Error)
	assert.Equal(t, int64(0), seq.Value)

	require.NoError(t, SeedMenu(db))
	require.NoError(t, SeedMenu(db))

	var count int64
	db.Model(&models.MenuItem{}).Count(&count)
	assert.Equal(t, int64(len(defaultMenu)), count)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.Database{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
