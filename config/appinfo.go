package config

// Mode is the application run mode.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeTest Mode = "test"
	ModeProd Mode = "prod"
)

// AppInfo carries process-wide identity and run-mode settings.
type AppInfo struct {
	Name string `json:"name" mapstructure:"name" ini:"name" yaml:"name" default:"docdb"`
	Mode Mode   `json:"mode" mapstructure:"mode" ini:"mode" yaml:"mode" default:"dev"`
	Dir  string `json:"dir" mapstructure:"dir" ini:"dir" yaml:"dir" default:"."`
}

func (c *AppInfo) setDefault() {
	if len(c.Name) == 0 {
		c.Name = "docdb"
	}
	if len(c.Mode) == 0 {
		c.Mode = ModeDev
	}
	if len(c.Dir) == 0 {
		c.Dir = "."
	}
}
