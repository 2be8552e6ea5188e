package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-clearance-api/pkg/config"
)

func TestDSNTagsApplicationName(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "pw", Name: "clearance", SSLMode: "disable"})
	require.Equal(t, "host=db port=5432 user=app password=pw dbname=clearance sslmode=disable application_name=sma-clearance-api", dsn)
}
