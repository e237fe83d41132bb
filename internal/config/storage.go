package config

// StorageConfig configures the SQLite-backed context store and cache.
type StorageConfig struct {
	// DatabasePath is the SQLite database file. The context store, version
	// snapshots, message history, and the generation cache share one file.
	DatabasePath string `yaml:"database_path" env:"ADFORGE_DB_PATH"`

	// BusHistoryLimit caps in-memory message history per campaign.
	BusHistoryLimit int `yaml:"bus_history_limit" env:"ADFORGE_BUS_HISTORY_LIMIT"`
}

// DefaultStorageConfig returns sensible defaults.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DatabasePath:    "adforge.db",
		BusHistoryLimit: 1000,
	}
}
