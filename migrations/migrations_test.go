package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationsCreateTables(t *testing.T) {
	stations, err := fs.ReadFile(FS, "000001_create_stations.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(stations), "five_minute_rules    JSONB")

	audit, err := fs.ReadFile(FS, "000002_create_dialogue_audit_events.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(audit), "dialogue_audit_events")
}
