package config

// CacheBackend selects the concrete cache.Cache implementation the engine
// wires up.
type CacheBackend string

const (
	CacheBackendRedis     CacheBackend = "redis"
	CacheBackendRistretto CacheBackend = "ristretto"
	CacheBackendNone      CacheBackend = "none"
)

// Cache configures the engine's read-through cache independent of backend.
type Cache struct {
	Backend CacheBackend `json:"backend" mapstructure:"backend" ini:"backend" yaml:"backend" default:"ristretto"`
	Name    string       `json:"name" mapstructure:"name" ini:"name" yaml:"name" default:"docdb"`
	Prefix  string       `json:"prefix" mapstructure:"prefix" ini:"prefix" yaml:"prefix" default:""`
	TTL     int          `json:"ttl" mapstructure:"ttl" ini:"ttl" yaml:"ttl" default:"86400"`
	// MaxCostBytes bounds the in-process ristretto backend's memory use.
	MaxCostBytes int64 `json:"max_cost_bytes" mapstructure:"max_cost_bytes" ini:"max_cost_bytes" yaml:"max_cost_bytes" default:"67108864"`
}

func (c *Cache) setDefault() {
	if len(c.Backend) == 0 {
		c.Backend = CacheBackendRistretto
	}
	if len(c.Name) == 0 {
		c.Name = "docdb"
	}
	if c.TTL == 0 {
		c.TTL = 86400
	}
	if c.MaxCostBytes == 0 {
		c.MaxCostBytes = 64 * 1024 * 1024
	}
}

// Redis configures the github.com/redis/go-redis/v9 backend.
type Redis struct {
	Enable   bool   `json:"enable" mapstructure:"enable" ini:"enable" yaml:"enable" default:"false"`
	Addr     string `json:"addr" mapstructure:"addr" ini:"addr" yaml:"addr" default:"127.0.0.1:6379"`
	Username string `json:"username" mapstructure:"username" ini:"username" yaml:"username"`
	Password string `json:"password" mapstructure:"password" ini:"password" yaml:"password"`
	DB       int    `json:"db" mapstructure:"db" ini:"db" yaml:"db" default:"0"`
}

func (c *Redis) setDefault() {
	if len(c.Addr) == 0 {
		c.Addr = "127.0.0.1:6379"
	}
}
