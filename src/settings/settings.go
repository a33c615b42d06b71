package settings

import "sync"

type Arguments struct {
	// The file path to the datafiles
	DataDir string
	LogDir  string

	ConfigFile string

	// Path to the relational schema definition (YAML)
	SchemaFile string

	// Path to the duality view definitions (YAML)
	ViewsFile string

	// the host name or IP address to listen on
	Host string

	// the port number to listen on
	Port int

	// Strongly verbose logging
	Verbose bool

	Debug bool

	// Print log messages to the screen as well as the log file
	PrintToScreen bool

	// Maximum size of journal files in bytes
	MaxJournalFileSize int64

	Version string
}

var (
	instance *Arguments
	once     sync.Once
)

// GetSettings returns the global settings instance
func GetSettings() *Arguments {
	once.Do(func() {
		instance = &Arguments{}
	})
	return instance
}
