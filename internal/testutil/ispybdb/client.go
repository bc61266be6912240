// Package ispybdb provisions disposable ISPyB-shaped databases for
// integration tests. Each test gets its own schema on the MySQL server
// ISPYB_TEST_DSN points at, loaded from fixture SQL and dropped on cleanup.
package ispybdb

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// TestDB is one disposable database created for a single test.
type TestDB struct {
	// DB is connected with the provisioned database as its default schema.
	DB *sql.DB
	// DatabaseName is the generated schema name, safe to splice into DDL.
	DatabaseName string

	cfg *mysql.Config
}

// New creates a database named after the test and registers its teardown.
// The test is skipped when ISPYB_TEST_DSN is unset, so the suite is inert
// without a disposable MySQL server.
func New(t *testing.T) *TestDB {
	t.Helper()

	raw := os.Getenv("ISPYB_TEST_DSN")
	if raw == "" {
		t.Skip("ISPYB_TEST_DSN not set (expected user:pass@tcp(host:port)/ of a disposable MySQL server)")
	}

	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		t.Fatalf("Failed to parse ISPYB_TEST_DSN: %v", err)
	}
	cfg.ParseTime = true

	dbName := fmt.Sprintf("ispybtest_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())
	if !validDatabaseName(dbName) {
		t.Fatalf("Invalid database name generated: %s", dbName)
	}

	// Bootstrap on the DSN as given, create the per-test database, then
	// reconnect with the new name as the default schema.
	bootstrap := open(t, cfg.FormatDSN())
	if _, err := bootstrap.Exec(fmt.Sprintf("CREATE DATABASE `%s`", dbName)); err != nil {
		_ = bootstrap.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	if err := bootstrap.Close(); err != nil {
		t.Logf("Warning: failed to close bootstrap connection: %v", err)
	}

	testCfg := cfg.Clone()
	testCfg.DBName = dbName

	tdb := &TestDB{
		DB:           open(t, testCfg.FormatDSN()),
		DatabaseName: dbName,
		cfg:          testCfg,
	}
	t.Cleanup(func() { tdb.teardown(t) })
	return tdb
}

// DSN returns the connection string of the provisioned database, for handing
// to a server process under test.
func (tdb *TestDB) DSN() string {
	return tdb.cfg.FormatDSN()
}

// LoadSchema executes the DDL file at path against the test database.
func (tdb *TestDB) LoadSchema(t *testing.T, path string) {
	t.Helper()
	loadSQLFile(t, tdb.DB, path)
}

// LoadFixtures executes the data file at path against the test database.
func (tdb *TestDB) LoadFixtures(t *testing.T, path string) {
	t.Helper()
	loadSQLFile(t, tdb.DB, path)
}

func (tdb *TestDB) teardown(t *testing.T) {
	t.Helper()

	if tdb.DB == nil {
		return
	}
	if validDatabaseName(tdb.DatabaseName) {
		if _, err := tdb.DB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", tdb.DatabaseName)); err != nil {
			t.Logf("Warning: failed to drop test database %s: %v", tdb.DatabaseName, err)
		}
	}
	if err := tdb.DB.Close(); err != nil {
		t.Logf("Warning: failed to close test database connection: %v", err)
	}
}

func open(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}
	return db
}

func loadSQLFile(t *testing.T, db *sql.DB, path string) {
	t.Helper()

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read SQL file %s: %v", path, err)
	}

	for i, stmt := range splitSQL(string(payload)) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute SQL statement %d from %s: %v\nStatement: %s", i+1, path, err, stmt)
		}
	}
}

// splitSQL splits on semicolons. Fixture files must not put semicolons
// inside string literals or comments.
func splitSQL(payload string) []string {
	parts := strings.Split(payload, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// sanitizeName makes a test name safe for use in a database name. MySQL
// limits names to 64 characters, and the prefix and timestamp need room.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, ch := range name {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	if len(sanitized) > 36 {
		sanitized = sanitized[:36]
	}
	return sanitized
}

// validDatabaseName guards the identifiers spliced into CREATE/DROP
// DATABASE statements, which cannot be parameterized.
func validDatabaseName(name string) bool {
	if l := len(name); l == 0 || l > 64 {
		return false
	}
	for _, ch := range name {
		valid := (ch >= 'A' && ch <= 'Z') ||
			(ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '_'
		if !valid {
			return false
		}
	}
	return true
}
