package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	// goqu dialects used to render queries
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	// database/sql drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLDB wraps a database/sql handle together with the goqu dialect
// used to build statements for it
type SQLDB struct {
	Goqu    *goqu.Database
	DB      *sql.DB
	Dialect string
	log     *log.Logger
}

// driver and goqu dialect names per store type
var sqlDrivers = map[string]struct {
	driver  string
	dialect string
}{
	config.StoreSQLite:   {driver: "sqlite", dialect: "sqlite3"},
	config.StorePostgres: {driver: "postgres", dialect: "postgres"},
}

//NewSQLDB opens and pings the SQL store named by the config
func NewSQLDB(conf *config.Config, logger *log.Logger) (*SQLDB, error) {
	names, ok := sqlDrivers[conf.S.Store.Type]
	if !ok {
		return nil, errors.Errorf("store type %q is not backed by SQL", conf.S.Store.Type)
	}

	db, err := sql.Open(names.driver, conf.S.Store.ConnectionString)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s store", conf.S.Store.Type)
	}

	if conf.S.Store.Type == config.StoreSQLite {
		// one connection keeps :memory: databases alive across workers
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "could not connect to %s store", conf.S.Store.Type)
	}

	if conf.S.Store.Type == config.StoreSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "could not configure sqlite")
		}
	}

	logger.WithFields(log.Fields{
		"store": conf.S.Store.Type,
	}).Debug("Connected to SQL store")

	return &SQLDB{
		Goqu:    goqu.New(names.dialect, db),
		DB:      db,
		Dialect: names.dialect,
		log:     logger,
	}, nil
}

//ExecAll runs each statement in order, stopping at the first failure
func (d *SQLDB) ExecAll(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to execute %q", stmt))
		}
	}
	return nil
}

//Close releases the connection pool
func (d *SQLDB) Close() error {
	return d.DB.Close()
}
