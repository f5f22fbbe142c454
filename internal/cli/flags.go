package cli

import (
	"io"

	"github.com/runnerr0/tabtally/internal/storage"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DBPath  string `long:"db-path" description:"Override the SQLite database file"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows today's counters, store stats and daemon health.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// HistoryCommand lists day summaries in a range.
type HistoryCommand struct {
	Since  string `long:"since" description:"Only days newer than duration (e.g., 7d, 2w)" default:"30d"`
	Until  string `long:"until" description:"Only days older than duration"`
	Limit  int    `long:"limit" description:"Maximum days" default:"31"`
	Offset int    `long:"offset" description:"Skip first N days" default:"0"`

	globals *GlobalFlags
}

// ShowCommand prints a single day.
type ShowCommand struct {
	Day    string `long:"day" description:"Day to show as YYYY-MM-DD (default: today, UTC)"`
	Format string `long:"format" description:"Output format: full | hours | json" default:"full"`

	globals *GlobalFlags
}

// ExportCommand writes all day records as CSV.
type ExportCommand struct {
	Output string `long:"output" short:"o" description:"CSV file to write" default:"tabtally.csv"`
	Open   bool   `long:"open" description:"Open the file with the desktop handler when done"`

	globals *GlobalFlags
}

// IngestCommand runs the tracking daemon.
type IngestCommand struct {
	Host     string `long:"host" description:"Override daemon listen host"`
	Port     int    `long:"port" description:"Override daemon port"`
	CDPURL   string `long:"cdp-url" description:"Chrome DevTools URL to watch (e.g., http://127.0.0.1:9222)"`
	Reason   string `long:"reason" description:"Why tracking is starting" choice:"auto" choice:"install" choice:"startup" default:"auto"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// PurgeCommand deletes ALL day records with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	store   storage.Store // injectable for testing; nil means open the configured store
	stdin   io.Reader
}
