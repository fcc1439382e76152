package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoDatabaseName(t *testing.T) {
	name, err := MongoDatabaseName("mongodb://localhost:27017/mes_db", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "mes_db", name)

	name, err = MongoDatabaseName("mongodb://localhost:27017", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", name)

	_, err = MongoDatabaseName("postgres://nope", "fallback")
	assert.Error(t, err)
}
