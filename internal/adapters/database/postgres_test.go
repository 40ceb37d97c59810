package database

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	t.Parallel()

	t.Run("db name", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, "assetcache", DB_NAME)
	})

	t.Run("embedded migrations", func(t *testing.T) {
		t.Parallel()

		entries, err := embeddedMigrations.ReadDir("migrations")
		require.NoError(t, err)
		require.NotEmpty(t, entries)
	})

	if testing.Short() {
		t.Skip("skipping db tests in short mode.")
	}

	t.Run("NewPostgresDatabase", func(t *testing.T) {
		t.Parallel()

		db, err := NewPostgresDatabase(LOCAL_CONNECTION_STRING)
		require.NoError(t, err)
		require.NotNil(t, db)
	})

	t.Run("createDatabaseIfNotExists", func(t *testing.T) {
		t.Parallel()

		db, err := sqlx.Connect("postgres", LOCAL_CONNECTION_STRING)
		require.NoError(t, err)

		require.NoError(t, createDatabaseIfNotExists(db, "postgres"))
		require.NoError(t, createDatabaseIfNotExists(db, DB_NAME))

		const characters = "abcdefghijklmnopqrstuvwxyz"
		suffix := make([]byte, 10)
		for i := range suffix {
			suffix[i] = characters[rand.Intn(len(characters))]
		}
		require.NoError(t, createDatabaseIfNotExists(db, fmt.Sprintf("zz_random_db_%s", string(suffix))))
	})

	t.Run("migrate twice", func(t *testing.T) {
		t.Parallel()

		db, err := NewPostgresDatabase(LOCAL_CONNECTION_STRING)
		require.NoError(t, err)

		schemaName := "migrate_twice"
		db.MustExec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schemaName)))

		migrator := NewDatabaseMigrator(db, slog.New(slog.NewTextHandler(io.Discard, nil)))

		version, err := migrator.Version(t.Context(), schemaName)
		require.NoError(t, err)
		require.Equal(t, uint(0), version)

		require.NoError(t, migrator.Migrate(t.Context(), schemaName))
		require.NoError(t, migrator.Migrate(t.Context(), schemaName))

		version, err = migrator.Version(t.Context(), schemaName)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)

		var count int
		err = db.Get(&count, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = 'assets'", schemaName)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
