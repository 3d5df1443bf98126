package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://u:p@localhost:5432/old?sslmode=disable", "gtfs_seq_20240301")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/gtfs_seq_20240301?sslmode=disable", got)

	got, err = WithDBName("u:p@db:5432/x", "/postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/postgres", got)

	_, err = WithDBName("", "x")
	assert.Error(t, err)
	_, err = WithDBName("mysql://u@h/x", "y")
	assert.Error(t, err)
}

func TestStoreSchemaPlaceholder(t *testing.T) {
	s := NewStore(nil, "transit")
	assert.Equal(t, "SELECT 1 FROM transit.stops JOIN transit.trips", s.q("SELECT 1 FROM {{s}}.stops JOIN {{s}}.trips"))

	s = NewStore(nil, "")
	assert.Equal(t, "gtfs.routes", s.q("{{s}}.routes"))
}

func TestSecExprDoesNotWrap(t *testing.T) {
	e := secExpr("st.departure_time")
	assert.True(t, strings.Contains(e, "NULLIF(st.departure_time::text, '')"))
	assert.False(t, strings.Contains(e, "% 86400"))
	assert.False(t, strings.Contains(e, "::time"))
}

func TestDaySeconds(t *testing.T) {
	v := daySeconds("25:10:00")
	require.NotNil(t, v)
	assert.Equal(t, 90600, *v)
	assert.Nil(t, daySeconds(""))
}
