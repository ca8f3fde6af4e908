package source

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLReader reads a table from MySQL or MariaDB.
type MySQLReader struct {
	sqlReader
	location string
}

// OpenMySQL connects to dsn, which may be a driver DSN or a mariadb:// or
// mysql:// URL. No query is issued until Count or Read.
func OpenMySQL(dsn, table string, cols Columns) (*MySQLReader, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg, err := mysql.ParseDSN(mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &MySQLReader{
		sqlReader: sqlReader{
			db:    db,
			from:  quoteBacktick(table),
			cols:  cols,
			quote: quoteBacktick,
		},
		location: fmt.Sprintf("%s/%s.%s", cfg.Addr, cfg.DBName, table),
	}, nil
}

func mysqlLocation(dsn, table string) string {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return table
	}
	cfg, err := mysql.ParseDSN(mysqlDSN)
	if err != nil {
		return table
	}
	return fmt.Sprintf("%s/%s.%s", cfg.Addr, cfg.DBName, table)
}

func (r *MySQLReader) Kind() string     { return KindMySQL }
func (r *MySQLReader) Location() string { return r.location }

// toMySQLDSN turns mariadb:// and mysql:// URLs into driver DSNs. Anything
// else passes through unchanged.
func toMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "mariadb://") && !strings.HasPrefix(dsn, "mysql://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	host := u.Host
	db := strings.TrimPrefix(u.Path, "/")
	if user == "" || host == "" || db == "" {
		return "", fmt.Errorf("incomplete dsn: user, host and database are required")
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = db
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}
