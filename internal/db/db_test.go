package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		name, dsn, db, want string
		wantErr             bool
	}{
		{"replace", "postgres://u:p@h:5432/postgres?sslmode=disable", "plans", "postgres://u:p@h:5432/plans?sslmode=disable", false},
		{"leading slash", "postgresql://h/old", "/plans", "postgresql://h/plans", false},
		{"no scheme", "u@h:5432/old", "plans", "postgres://u@h:5432/plans", false},
		{"empty database keeps dsn", "postgres://h/old", "", "postgres://h/old", false},
		{"empty dsn", "", "plans", "", true},
		{"wrong scheme", "mysql://h/old", "plans", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.db)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeParams(t *testing.T) {
	m, err := decodeParams([]byte(`{"depth": 0.3, "tool": "scoop"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"depth": 0.3, "tool": "scoop"}, m)

	m, err = decodeParams(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = decodeParams([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = decodeParams([]byte(`[1,2]`))
	assert.Error(t, err)
}
