package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// Validation limits applied by the API before requests reach the engine. The
// engine itself does not enforce them; programmatic callers bypass the API
// entirely.
type Limits struct {
	// MaxKeyDepth is the maximum number of parts in one key.
	MaxKeyDepth int
	// MaxKeySize is the maximum encoded key size in bytes.
	MaxKeySize int
	// MaxValueSize is the maximum serialized value size in bytes.
	MaxValueSize int
	// MaxMutations caps checks plus mutations in one atomic commit.
	MaxMutations int
	// MaxSearchLimit clamps the limit of a search request.
	MaxSearchLimit int
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxKeyDepth:    16,
		MaxKeySize:     2048,
		MaxValueSize:   64 * 1024,
		MaxMutations:   1000,
		MaxSearchLimit: 1000,
	}
}

// ServerConfig holds all configuration parameters for the keyval server.
type ServerConfig struct {
	// Endpoint is the address the HTTP API listens on.
	Endpoint string

	// DBPath is the SQLite database file, ":memory:" for ephemeral storage.
	DBPath string

	// MetricsFlushInterval is the period of the metrics persistence timer.
	// Zero disables metrics persistence entirely.
	MetricsFlushInterval time.Duration

	// Request validation limits.
	Limits Limits

	// Logging configuration.
	LogLevel string
}

// String returns a formatted string representation of the configuration.
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)

	addSection("Storage")
	addField("Database", c.DBPath)

	addSection("Metrics")
	if c.MetricsFlushInterval > 0 {
		addField("Persistence", "enabled")
		addField("Flush Interval", c.MetricsFlushInterval.String())
	} else {
		addField("Persistence", "disabled")
	}

	addSection("Limits")
	addField("Max Key Depth", fmt.Sprintf("%d", c.Limits.MaxKeyDepth))
	addField("Max Key Size", fmt.Sprintf("%d B", c.Limits.MaxKeySize))
	addField("Max Value Size", fmt.Sprintf("%d B", c.Limits.MaxValueSize))
	addField("Max Mutations", fmt.Sprintf("%d", c.Limits.MaxMutations))
	addField("Max Search Limit", fmt.Sprintf("%d", c.Limits.MaxSearchLimit))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
