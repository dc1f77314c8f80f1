package sqliteutil

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config describes where the database lives. When Url is empty the
// local sqlite file at File is used, otherwise a remote libsql database.
type Config struct {
	File      string `json:"file" env:"FILE"`
	Url       string `json:"url" env:"URL"`
	AuthToken string `json:"auth_token" env:"AUTH_TOKEN"`
}

func (c Config) Validate() error {
	if c.File == "" && c.Url == "" {
		return fmt.Errorf("database: either a file or a url must be specified")
	}
	return nil
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens a local sqlite database at path, ":memory:" is supported.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// sqlite only supports a single writer, a single connection also keeps
	// ":memory:" databases from being split across connections.
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}
	_, err = db.Exec("PRAGMA foreign_keys=ON")
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

// Open opens the database described by the config.
func (c Config) Open() (*sql.DB, error) {
	if c.Url == "" {
		return OpenDB(c.File)
	}

	values := url.Values{}
	if c.AuthToken != "" {
		values.Add("authToken", c.AuthToken)
	}
	db, err := sql.Open("libsql", c.Url+"?"+values.Encode())
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

// OpenAndMigrate opens the database and applies the schema, the schema is
// expected to consist of idempotent `CREATE ... IF NOT EXISTS` statements.
func (c Config) OpenAndMigrate(schema string) (*sql.DB, error) {
	db, err := c.Open()
	if err != nil {
		return nil, err
	}
	err = Migrate(db, schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB, schema string) error {
	_, err := db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}
