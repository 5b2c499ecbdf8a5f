package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	content := `
CREATE TABLE a (id TEXT);

CREATE INDEX idx_a ON a(id);
;
`
	assert.Equal(t, []string{"CREATE TABLE a (id TEXT)", "CREATE INDEX idx_a ON a(id)"}, splitStatements(content))
	assert.Empty(t, splitStatements("  \n "))
}

func TestGetPendingMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2")},
		"001_first.sql":  {Data: []byte("SELECT 1")},
		"003_third.sql":  {Data: []byte("SELECT 3")},
		"README.md":      {Data: []byte("notes")},
	}

	files, err := getPendingMigrationFiles(fsys, map[string]bool{"002_second.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "003_third.sql"}, files)
}
