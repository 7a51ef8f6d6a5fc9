package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_ListsMigrationPairs(t *testing.T) {
	names, err := Sources()
	require.NoError(t, err)
	assert.NotEmpty(t, names)

	// Every .up.sql must have a matching .down.sql alongside it.
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case len(n) > 7 && n[len(n)-7:] == ".up.sql":
			ups[n[:len(n)-7]] = true
		case len(n) > 9 && n[len(n)-9:] == ".down.sql":
			downs[n[:len(n)-9]] = true
		}
	}
	for stem := range ups {
		assert.True(t, downs[stem], "missing down migration for %s", stem)
	}
}

func TestNew_DefaultsTimeout(t *testing.T) {
	m := New(nil, Config{})
	assert.Equal(t, int64(60), int64(m.cfg.Timeout.Seconds()))
}
