package postgresql_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/database"
	"github.com/stretchr/testify/require"
)

// newTestDB connects to TEST_DATABASE_URL, applies the schema and empties the
// tables. Tests are skipped when no database is configured.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.NewPostgreSQLDB(dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ctx := context.Background()
	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(ctx, string(schema))
	require.NoError(t, err)

	_, err = db.Exec(ctx, "TRUNCATE TABLE persons, attendance_records, attendance_notifications")
	require.NoError(t, err)

	return db
}

func insertPerson(t *testing.T, db *database.DB, partition, externalID, name string, sites, brands []string) string {
	t.Helper()
	var id string
	err := db.QueryRow(context.Background(), `
		INSERT INTO persons (partition, external_id, full_name, authorized_sites, authorized_brands)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, partition, externalID, name, sites, brands).Scan(&id)
	require.NoError(t, err)
	return id
}
