package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMemory(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE readings (id INTEGER)`)
	require.NoError(t, err)
}

func TestOpenRejectsUnknownDriverAndEmptyDSN(t *testing.T) {
	_, err := Open("mysql", "user@/db")
	require.Error(t, err)

	_, err = Open("sqlite", "  ")
	require.Error(t, err)
}
