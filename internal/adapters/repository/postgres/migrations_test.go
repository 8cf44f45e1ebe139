package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesOrder(t *testing.T) {
	up, err := MigrationFiles("up")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000001_create_items.up.sql",
		"000002_create_votes.up.sql",
		"000003_notify_item_changes.up.sql",
	}, up)

	down, err := MigrationFiles("down")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000003_notify_item_changes.down.sql",
		"000002_create_votes.down.sql",
		"000001_create_items.down.sql",
	}, down)
}

func TestFindMigration(t *testing.T) {
	name, err := FindMigration("create_votes.up")
	require.NoError(t, err)
	assert.Equal(t, "000002_create_votes.up.sql", name)

	_, err = FindMigration("drop_everything")
	assert.Error(t, err)
}
