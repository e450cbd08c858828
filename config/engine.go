package config

// Engine configures the Document engine's limits and tenancy mode, beyond
// whatever the active Adapter separately reports as its own hard limits.
type Engine struct {
	RelationMaxDepth int  `json:"relation_max_depth" mapstructure:"relation_max_depth" ini:"relation_max_depth" yaml:"relation_max_depth" default:"3"`
	MaxQueryValues   int  `json:"max_query_values" mapstructure:"max_query_values" ini:"max_query_values" yaml:"max_query_values" default:"100"`
	ArrayIndexLength int  `json:"array_index_length" mapstructure:"array_index_length" ini:"array_index_length" yaml:"array_index_length" default:"255"`
	SharedTables     bool `json:"shared_tables" mapstructure:"shared_tables" ini:"shared_tables" yaml:"shared_tables" default:"false"`
	PreserveDates    bool `json:"preserve_dates" mapstructure:"preserve_dates" ini:"preserve_dates" yaml:"preserve_dates" default:"false"`
}

func (c *Engine) setDefault() {
	if c.RelationMaxDepth == 0 {
		c.RelationMaxDepth = 3
	}
	if c.MaxQueryValues == 0 {
		c.MaxQueryValues = 100
	}
	if c.ArrayIndexLength == 0 {
		c.ArrayIndexLength = 255
	}
}

// Debug toggles verbose instrumentation (SQL echoing, extra event logging).
type Debug struct {
	Enable bool `json:"enable" mapstructure:"enable" ini:"enable" yaml:"enable" default:"false"`
}

func (c *Debug) setDefault() {}
