package curriculum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "NSW", table.Curriculum)
	assert.Equal(t, 7, table.YearLevel)
	assert.Len(t, table.Topics, 9)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, table, again)
}

func TestLookup(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	byID, ok := table.Lookup("fractions")
	require.True(t, ok)
	assert.Equal(t, "Fractions", byID.Name)

	byName, ok := table.Lookup("introduction to algebra")
	require.True(t, ok)
	assert.Equal(t, "algebra_basics", byName.ID)

	_, ok = table.Lookup("calculus")
	assert.False(t, ok)
}

func TestForLabel(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	geometry := table.ForLabel("Geometry")
	require.Len(t, geometry, 2)
	assert.Equal(t, "angles", geometry[0].ID)
	assert.Equal(t, "area_volume", geometry[1].ID)

	assert.Empty(t, table.ForLabel("Mathematics"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no topics", "curriculum: NSW\n", "no topics"},
		{"missing id", "topics:\n  - name: A\n", "id must not be empty"},
		{"duplicate id", "topics:\n  - {id: a, name: A}\n  - {id: a, name: B}\n", "duplicate id"},
		{"empty scaffold", "topics:\n  - id: a\n    name: A\n    scaffolds:\n      - key: s\n", "has no steps"},
		{"bad yaml", "topics: [", "curriculum parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
