package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/ValentinKolb/dShard/lib/storage"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// driver specific error codes
const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"

	mysqlNoSuchTable  = 1146
	mysqlDuplicateKey = 1062
)

// classify maps a driver error to a storage error
func (s *Store) classify(err error, op string) error {
	code := storage.RetCInternalError

	var (
		pgErr     *pgconn.PgError
		mysqlErr  *mysql.MySQLError
		sqliteErr *sqlite.Error
		netErr    net.Error
	)

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.As(err, &netErr):
		code = storage.RetCUnavailable

	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == pgUndefinedTable:
			code = storage.RetCNoSuchTable
		case pgErr.Code == pgUniqueViolation:
			code = storage.RetCDuplicateKey
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			// connection exception, operator intervention (shutdown)
			code = storage.RetCUnavailable
		}

	case errors.As(err, &mysqlErr):
		switch mysqlErr.Number {
		case mysqlNoSuchTable:
			code = storage.RetCNoSuchTable
		case mysqlDuplicateKey:
			code = storage.RetCDuplicateKey
		}

	case errors.As(err, &sqliteErr):
		switch c := sqliteErr.Code(); {
		case c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, c == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			code = storage.RetCDuplicateKey
		case c&0xff == sqlite3.SQLITE_BUSY, c&0xff == sqlite3.SQLITE_LOCKED, c&0xff == sqlite3.SQLITE_CANTOPEN:
			code = storage.RetCUnavailable
		case strings.Contains(sqliteErr.Error(), "no such table"):
			code = storage.RetCNoSuchTable
		}

	case strings.Contains(err.Error(), "no such table"):
		code = storage.RetCNoSuchTable
	}

	if code == storage.RetCInternalError {
		log.Warningf("%s: unclassified %s error: %v", op, s.dialect.name, err)
	}
	return storage.Errorf(code, "%s: %v", op, err)
}
