package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Registry.Driver == "" {
		cfg.Registry.Driver = "sqlite"
	}
	if cfg.Registry.Driver == "sqlite" && cfg.Registry.Path == "" {
		cfg.Registry.Path = "/usr/local/var/kumitate/registry.db"
	}
	if cfg.Registry.Table == "" {
		cfg.Registry.Table = "query_registry"
	}
	if cfg.Source.Name == "" {
		cfg.Source.Name = "bigquery-source"
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "bigquery"
	}
	if cfg.Publisher.Backend == "" {
		cfg.Publisher.Backend = "file"
	}
	if cfg.Publisher.Backend == "file" && cfg.Publisher.Path == "" {
		cfg.Publisher.Path = "/usr/local/var/kumitate/tools.yaml"
	}
	if cfg.Publisher.Secret.Name == "" {
		cfg.Publisher.Secret.Name = "mcp-tools-yaml"
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 2000
	}
}
