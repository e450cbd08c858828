package config

import "time"

// DBType selects which dialect-specific section below is active.
type DBType string

const (
	DBSqlite   DBType = "sqlite"
	DBPostgres DBType = "postgres"
	DBMySQL    DBType = "mysql"
)

// Database holds dialect-agnostic connection-pool tuning shared by every
// SQL backend, plus the active dialect selector.
type Database struct {
	Type               DBType        `json:"type" mapstructure:"type" ini:"type" yaml:"type" default:"sqlite"`
	MaxIdleConns       int           `json:"max_idle_conns" mapstructure:"max_idle_conns" ini:"max_idle_conns" yaml:"max_idle_conns" default:"10"`
	MaxOpenConns       int           `json:"max_open_conns" mapstructure:"max_open_conns" ini:"max_open_conns" yaml:"max_open_conns" default:"100"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime" ini:"conn_max_lifetime" yaml:"conn_max_lifetime" default:"1h"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time" ini:"conn_max_idle_time" yaml:"conn_max_idle_time" default:"30m"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" mapstructure:"slow_query_threshold" ini:"slow_query_threshold" yaml:"slow_query_threshold" default:"200ms"`
	SharedTables       bool          `json:"shared_tables" mapstructure:"shared_tables" ini:"shared_tables" yaml:"shared_tables" default:"false"`
}

func (c *Database) setDefault() {
	if len(c.Type) == 0 {
		c.Type = DBSqlite
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 30 * time.Minute
	}
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
}

// Sqlite configures the sqlite dialect (database/sqlite in the teacher,
// adapter/gormadapter here).
type Sqlite struct {
	Enable   bool   `json:"enable" mapstructure:"enable" ini:"enable" yaml:"enable" default:"true"`
	Path     string `json:"path" mapstructure:"path" ini:"path" yaml:"path" default:"docdb.db"`
	Database string `json:"database" mapstructure:"database" ini:"database" yaml:"database" default:"docdb"`
	IsMemory bool   `json:"is_memory" mapstructure:"is_memory" ini:"is_memory" yaml:"is_memory" default:"false"`
}

func (c *Sqlite) setDefault() {
	if len(c.Path) == 0 {
		c.Path = "docdb.db"
	}
	if len(c.Database) == 0 {
		c.Database = "docdb"
	}
}

// Postgres configures the postgres dialect.
type Postgres struct {
	Enable   bool   `json:"enable" mapstructure:"enable" ini:"enable" yaml:"enable" default:"false"`
	Host     string `json:"host" mapstructure:"host" ini:"host" yaml:"host" default:"127.0.0.1"`
	Port     int    `json:"port" mapstructure:"port" ini:"port" yaml:"port" default:"5432"`
	Username string `json:"username" mapstructure:"username" ini:"username" yaml:"username" default:"postgres"`
	Password string `json:"password" mapstructure:"password" ini:"password" yaml:"password"`
	Database string `json:"database" mapstructure:"database" ini:"database" yaml:"database" default:"docdb"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode" ini:"sslmode" yaml:"sslmode" default:"disable"`
	TimeZone string `json:"timezone" mapstructure:"timezone" ini:"timezone" yaml:"timezone" default:"UTC"`
}

func (c *Postgres) setDefault() {
	if len(c.Host) == 0 {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if len(c.Username) == 0 {
		c.Username = "postgres"
	}
	if len(c.Database) == 0 {
		c.Database = "docdb"
	}
	if len(c.SSLMode) == 0 {
		c.SSLMode = "disable"
	}
	if len(c.TimeZone) == 0 {
		c.TimeZone = "UTC"
	}
}

// MySQL configures the mysql dialect.
type MySQL struct {
	Enable   bool   `json:"enable" mapstructure:"enable" ini:"enable" yaml:"enable" default:"false"`
	Host     string `json:"host" mapstructure:"host" ini:"host" yaml:"host" default:"127.0.0.1"`
	Port     int    `json:"port" mapstructure:"port" ini:"port" yaml:"port" default:"3306"`
	Username string `json:"username" mapstructure:"username" ini:"username" yaml:"username" default:"root"`
	Password string `json:"password" mapstructure:"password" ini:"password" yaml:"password"`
	Database string `json:"database" mapstructure:"database" ini:"database" yaml:"database" default:"docdb"`
	Charset  string `json:"charset" mapstructure:"charset" ini:"charset" yaml:"charset" default:"utf8mb4"`
}

func (c *MySQL) setDefault() {
	if len(c.Host) == 0 {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if len(c.Username) == 0 {
		c.Username = "root"
	}
	if len(c.Database) == 0 {
		c.Database = "docdb"
	}
	if len(c.Charset) == 0 {
		c.Charset = "utf8mb4"
	}
}
