package gormadapter

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/docdb/config"
	"github.com/forbearing/docdb/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open dials the database.Type selected in cfg and returns a ready *gorm.DB
// plus the Dialect the DDL/DML layer must render for it, grounded in the
// teacher's per-dialect database/sqlite.New and database/postgres.New
// connection-bootstrap helpers.
func Open(cfg config.Database, sqliteCfg config.Sqlite, pgCfg config.Postgres, mysqlCfg config.MySQL) (*gorm.DB, Dialect, error) {
	switch cfg.Type {
	case config.DBPostgres:
		db, err := openPostgres(pgCfg)
		return db, DialectPostgres, err
	case config.DBMySQL:
		db, err := openMySQL(mysqlCfg)
		return db, DialectMySQL, err
	case config.DBSqlite:
		fallthrough
	default:
		db, err := openSqlite(sqliteCfg)
		return db, DialectSQLite, err
	}
}

func openSqlite(cfg config.Sqlite) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(cfg)), &gorm.Config{Logger: logger.Gorm, TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to sqlite")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain underlying sql.DB")
	}
	// sqlite works best with a single connection to avoid "database table is locked" errors.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(config.App.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.App.Database.ConnMaxIdleTime)
	if err := db.Exec("PRAGMA optimize").Error; err != nil {
		return nil, errors.Wrap(err, "failed to execute PRAGMA optimize")
	}
	return db, nil
}

func sqliteDSN(cfg config.Sqlite) string {
	if cfg.IsMemory || len(cfg.Path) == 0 {
		return "file::memory:?cache=shared"
	}
	params := []string{
		"_journal_mode=WAL",
		"_busy_timeout=5000",
		"_synchronous=NORMAL",
		"_temp_store=MEMORY",
		"_cache_size=-32000",
		"_foreign_keys=ON",
	}
	return cfg.Path + "?" + strings.Join(params, "&")
}

func openPostgres(cfg config.Postgres) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s connect_timeout=5",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Gorm, TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	return tunePool(db)
}

func openMySQL(cfg config.MySQL) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Gorm, TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mysql")
	}
	return tunePool(db)
}

func tunePool(db *gorm.DB) (*gorm.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain underlying sql.DB")
	}
	sqlDB.SetMaxIdleConns(config.App.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.App.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.App.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.App.Database.ConnMaxIdleTime)
	return db, nil
}
