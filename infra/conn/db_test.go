package conn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paybridge.db")

	var db DB
	require.NoError(t, db.ConnectDatabase(path))
	defer db.CloseDatabase()

	_, err := db.Exec(`CREATE TABLE probe (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO probe (id) VALUES ('x')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM probe`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCloseDatabase_NilIsSafe(t *testing.T) {
	var db DB
	assert.NotPanics(t, db.CloseDatabase)
}

func TestConnectRedis_BadURL(t *testing.T) {
	_, err := ConnectRedis("not-a-redis-url")
	assert.Error(t, err)
}
