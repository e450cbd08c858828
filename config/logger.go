package config

// Logger configures the zap-backed structured logger (logger/zap).
type Logger struct {
	Level      string `json:"level" mapstructure:"level" ini:"level" yaml:"level" default:"info"`
	Format     string `json:"format" mapstructure:"format" ini:"format" yaml:"format" default:"json"`
	Encoder    string `json:"encoder" mapstructure:"encoder" ini:"encoder" yaml:"encoder" default:"json"`
	File       string `json:"file" mapstructure:"file" ini:"file" yaml:"file" default:"/dev/stdout"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age" ini:"max_age" yaml:"max_age" default:"30"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" ini:"max_size" yaml:"max_size" default:"100"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" ini:"max_backups" yaml:"max_backups" default:"10"`
}

func (c *Logger) setDefault() {
	if len(c.Level) == 0 {
		c.Level = "info"
	}
	if len(c.Format) == 0 {
		c.Format = "json"
	}
	if len(c.File) == 0 {
		c.File = "/dev/stdout"
	}
	if c.MaxAge == 0 {
		c.MaxAge = 30
	}
	if c.MaxSize == 0 {
		c.MaxSize = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 10
	}
}
