package fixture_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/testfixtures/fixture"
)

const todosYAML = `
- id: 1
  description: fizz
  done: true
  created_at: 2020/01/01 01:01:01
`

const todosInsert = "INSERT INTO todos (id, description, done, created_at) VALUES (?, ?, ?, ?)"

const mysqlTableNames = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTodosLoader(t *testing.T, db *sql.DB, opts ...func(*fixture.Config)) *fixture.Loader {
	t.Helper()

	path := writeFixture(t, t.TempDir(), "todos.yml", todosYAML)
	cfg := fixture.Config{
		DB:       db,
		Dialect:  fixture.MySQL,
		Location: time.UTC,
		Files:    []string{path},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	loader, err := fixture.New(cfg)
	require.NoError(t, err)
	return loader
}

func expectDatabaseName(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery("SELECT DATABASE()").
		WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow(name))
}

func expectTodosLoad(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM todos").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(todosInsert).
		WithArgs(int64(1), "fizz", true, "2020-01-01 01:01:01").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
}

func expectChecksum(mock sqlmock.Sqlmock, sum int64) {
	mock.ExpectQuery("CHECKSUM TABLE `todos`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Checksum"}).AddRow("app_test.todos", sum))
}

func TestNewConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := fixture.New(fixture.Config{})
	require.ErrorIs(t, err, fixture.ErrNoDatabase)
	require.ErrorIs(t, err, fixture.ErrNoDialect)
	require.ErrorIs(t, err, fixture.ErrNoLocation)

	db, _ := newMock(t)
	_, err = fixture.New(fixture.Config{DB: db, Dialect: fixture.MySQL, Location: time.UTC})
	require.ErrorIs(t, err, fixture.ErrNoFixtures)

	_, err = fixture.New(fixture.Config{DB: db, Dialect: fixture.MySQL, Location: time.UTC, Directory: t.TempDir()})
	require.ErrorIs(t, err, fixture.ErrNoFixtures)
}

func TestNewFileErrors(t *testing.T) {
	t.Parallel()

	db, _ := newMock(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     fixture.Config
		wantErr error
	}{
		{
			name:    "missing file",
			cfg:     fixture.Config{Files: []string{filepath.Join(dir, "missing.yml")}},
			wantErr: os.ErrNotExist,
		},
		{
			name: "file is a directory",
			cfg:  fixture.Config{Files: []string{dir}},
		},
		{
			name:    "missing directory",
			cfg:     fixture.Config{Directory: filepath.Join(dir, "missing")},
			wantErr: os.ErrNotExist,
		},
		{
			name:    "invalid fixture",
			cfg:     fixture.Config{Files: []string{writeFixture(t, dir, "bad.yml", "id: 1\n")}},
			wantErr: fixture.ErrNotList,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := tt.cfg
			cfg.DB, cfg.Dialect, cfg.Location = db, fixture.MySQL, time.UTC
			_, err := fixture.New(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "testfixtures: ")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewResolvesPaths(t *testing.T) {
	t.Parallel()

	db, _ := newMock(t)

	dir := t.TempDir()
	writeFixture(t, dir, "users.yml", "- id: 1\n")
	writeFixture(t, dir, "comments.yaml", "- id: 1\n")
	writeFixture(t, dir, "README.md", "# fixtures\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yml"), 0o700))

	other := t.TempDir()
	posts := writeFixture(t, other, "posts.yml", "- id: 1\n")
	tags := writeFixture(t, other, "tags.yml", "- id: 1\n")

	loader, err := fixture.New(fixture.Config{
		DB:        db,
		Dialect:   fixture.MySQL,
		Location:  time.UTC,
		Files:     []string{tags},
		Directory: dir,
		Paths:     []string{posts, dir},
	})
	require.NoError(t, err)

	var tables []string
	for _, f := range loader.Files() {
		tables = append(tables, f.Table)
	}
	assert.Equal(t, []string{"tags", "comments", "users", "posts", "comments", "users"}, tables)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)

	expectDatabaseName(mock, "app_test")
	expectTodosLoad(mock)
	expectChecksum(mock, 123)

	require.NoError(t, loader.Load(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, map[string]string{"todos": "123"}, loader.Checksums())
}

func TestLoadSkipsUnchangedTables(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	loader := newTodosLoader(t, db, func(cfg *fixture.Config) { cfg.Logger = &logger })

	expectDatabaseName(mock, "app_test")
	expectTodosLoad(mock)
	expectChecksum(mock, 123)
	require.NoError(t, loader.Load(context.Background()))

	expectDatabaseName(mock, "app_test")
	mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("todos"))
	expectChecksum(mock, 123)
	require.NoError(t, loader.Load(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, buf.String(), `"table":"todos","message":"skipping unchanged table"`)
}

func TestLoadReloadsChangedTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
	}{
		{
			name: "checksum differs",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("todos"))
				expectChecksum(mock, 456)
			},
		},
		{
			name: "checksum fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("todos"))
				mock.ExpectQuery("CHECKSUM TABLE `todos`").WillReturnError(assert.AnError)
			},
		},
		{
			name: "checksum is null",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("todos"))
				mock.ExpectQuery("CHECKSUM TABLE `todos`").
					WillReturnRows(sqlmock.NewRows([]string{"Table", "Checksum"}).AddRow("app_test.todos", nil))
			},
		},
		{
			name: "table missing",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
			},
		},
		{
			name: "listing tables fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(mysqlTableNames).WillReturnError(assert.AnError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMock(t)
			loader := newTodosLoader(t, db)

			expectDatabaseName(mock, "app_test")
			expectTodosLoad(mock)
			expectChecksum(mock, 123)
			require.NoError(t, loader.Load(context.Background()))

			expectDatabaseName(mock, "app_test")
			tt.expect(mock)
			expectTodosLoad(mock)
			expectChecksum(mock, 123)
			require.NoError(t, loader.Load(context.Background()))

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadSkipChangeDetection(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db, func(cfg *fixture.Config) { cfg.SkipChangeDetection = true })

	for range 2 {
		expectDatabaseName(mock, "app_test")
		expectTodosLoad(mock)
		require.NoError(t, loader.Load(context.Background()))
	}
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, loader.Checksums())
}

func TestLoadRefusesNonTestDatabase(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)

	expectDatabaseName(mock, "production")

	err := loader.Load(context.Background())
	require.ErrorIs(t, err, fixture.ErrNotTestDatabase)
	assert.Contains(t, err.Error(), "production")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTestDatabasePattern(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db, func(cfg *fixture.Config) {
		cfg.TestDatabasePattern = regexp.MustCompile(`_ci$`)
	})

	expectDatabaseName(mock, "app_test")
	err := loader.Load(context.Background())
	require.ErrorIs(t, err, fixture.ErrNotTestDatabase)

	expectDatabaseName(mock, "app_ci")
	expectTodosLoad(mock)
	expectChecksum(mock, 1)
	require.NoError(t, loader.Load(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSkipTestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db, func(cfg *fixture.Config) { cfg.SkipTestDatabaseCheck = true })

	expectTodosLoad(mock)
	expectChecksum(mock, 1)
	require.NoError(t, loader.Load(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadExecErrorRollsBack(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)
	driverErr := errors.New("Error 1062 (23000): Duplicate entry '1' for key 'todos.PRIMARY'")

	expectDatabaseName(mock, "app_test")
	mock.ExpectBegin()
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM todos").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(todosInsert).WillReturnError(driverErr)
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "testfixtures: "+driverErr.Error(), err.Error())
	require.ErrorIs(t, err, driverErr)

	var execErr *fixture.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, todosInsert, execErr.SQL)
	assert.Equal(t, "todos.yml", filepath.Base(execErr.File))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, loader.Checksums())
}

func TestLoadBeginFailureForgetsChecksums(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)

	expectDatabaseName(mock, "app_test")
	expectTodosLoad(mock)
	expectChecksum(mock, 123)
	require.NoError(t, loader.Load(context.Background()))

	expectDatabaseName(mock, "app_test")
	mock.ExpectQuery(mysqlTableNames).WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("todos"))
	expectChecksum(mock, 456)
	mock.ExpectBegin().WillReturnError(assert.AnError)

	err := loader.Load(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "testfixtures: begin")

	var execErr *fixture.ExecError
	assert.False(t, errors.As(err, &execErr))
	assert.Empty(t, loader.Checksums())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCanceledContext(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := loader.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTimeoutMidTransactionRollsBack(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db, func(cfg *fixture.Config) { cfg.SkipTestDatabaseCheck = true })

	mock.ExpectBegin()
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM todos").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(todosInsert).
		WillDelayFor(5 * time.Second).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := loader.Load(ctx)
	require.ErrorIs(t, err, sqlmock.ErrCancelled)

	var execErr *fixture.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, todosInsert, execErr.SQL)
	assert.Empty(t, loader.Checksums())

	// database/sql may roll back from its own goroutine once ctx is done.
	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = fixture.RunInTransaction(context.Background(), db, func(*sql.Tx) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadUnusableConnectionReturnsExecError(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	loader := newTodosLoader(t, db)

	expectDatabaseName(mock, "app_test")
	expectTodosLoad(mock)
	expectChecksum(mock, 123)
	require.NoError(t, loader.Load(context.Background()))

	expectDatabaseName(mock, "app_test")
	mock.ExpectQuery(mysqlTableNames).WillReturnError(mysql.ErrInvalidConn)

	err := loader.Load(context.Background())
	require.ErrorIs(t, err, mysql.ErrInvalidConn)

	var execErr *fixture.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Empty(t, execErr.SQL)
	assert.Equal(t, "testfixtures: table names: "+mysql.ErrInvalidConn.Error(), err.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}
