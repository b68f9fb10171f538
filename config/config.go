package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/edb-recover/filter"
	"github.com/dhcgn/edb-recover/model"
)

// Export formats accepted by --format.
const (
	FormatEML     = "eml"
	FormatMbox    = "mbox"
	FormatIMAP    = "imap"
	FormatCatalog = "catalog"
)

var Formats = []string{FormatEML, FormatMbox, FormatIMAP, FormatCatalog}

// Config captures all command-line options required to run a recovery.
type Config struct {
	EDBPath            string
	StoreDir           string
	Formats            []string
	OutputDir          string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	StateDir           string
	DryRun             bool
	LogLevel           string
	LogDir             string
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
	MinConfidence      model.Confidence
	TableHints         []string
	Mailboxes          []int
	PageSize           int
	FolderMap          string
}

// Wants reports whether format was selected with --format.
func (c Config) Wants(format string) bool {
	return slices.Contains(c.Formats, format)
}

func (c Config) FilterOptions() filter.Options {
	return filter.Options{
		IncludeHeader: c.IncludeHeader,
		IncludeBody:   c.IncludeBody,
		ExcludeHeader: c.ExcludeHeader,
		ExcludeBody:   c.ExcludeBody,
		MinConfidence: c.MinConfidence,
	}
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("edb", "", "Path to the Exchange database (.edb) to recover")
	flags.String("store-dump", "", "Directory of tab-separated table dumps exported from the database")
	flags.StringSlice("format", []string{FormatEML}, "Export formats: eml, mbox, imap, catalog")
	flags.String("output", "recovered", "Output directory for eml, mbox and catalog exports")
	flags.String("imap-host", "", "IMAP server hostname (required for --format imap)")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "Recovered", "Target IMAP folder for recovered mail")
	flags.String("state-dir", defaultStateDir, "Directory for incremental export state files")
	flags.Bool("dry-run", false, "Recover and emit stats without writing any export")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.StringArray("include-header", nil, "Regex allow-list applied to recovered headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to recovered bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to recovered headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to recovered bodies (mutually exclusive with include flags)")
	flags.String("min-confidence", "", "Drop messages below this confidence: low, medium, high")
	flags.StringSlice("table-hint", []string{"message", "msg"}, "Substrings identifying message tables")
	flags.IntSlice("mailbox", nil, "Recover only these mailbox numbers (reads Message_<N>, needs --store-dump)")
	flags.Int("page-size", 0, "Override the database page size used by the raw scan (0 = detect)")
	flags.String("folder-map", "", "JSON file with folder id to path and folder number to name mappings")

	return cmd.MarkFlagRequired("edb")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var err error
	var cfg Config

	str := func(name string, dst *string) {
		if err == nil {
			*dst, err = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil {
			*dst, err = flags.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil {
			*dst, err = flags.GetInt(name)
		}
	}
	array := func(name string, dst *[]string) {
		if err == nil {
			*dst, err = flags.GetStringArray(name)
		}
	}
	slice := func(name string, dst *[]string) {
		if err == nil {
			*dst, err = flags.GetStringSlice(name)
		}
	}

	var minConfidence string
	str("edb", &cfg.EDBPath)
	str("store-dump", &cfg.StoreDir)
	slice("format", &cfg.Formats)
	str("output", &cfg.OutputDir)
	str("imap-host", &cfg.IMAPHost)
	integer("imap-port", &cfg.IMAPPort)
	str("imap-user", &cfg.IMAPUser)
	str("imap-pass", &cfg.IMAPPass)
	boolean("use-tls", &cfg.UseTLS)
	boolean("insecure-skip-verify", &cfg.InsecureSkipVerify)
	str("target-folder", &cfg.TargetFolder)
	str("state-dir", &cfg.StateDir)
	boolean("dry-run", &cfg.DryRun)
	str("log-level", &cfg.LogLevel)
	str("log-dir", &cfg.LogDir)
	array("include-header", &cfg.IncludeHeader)
	array("include-body", &cfg.IncludeBody)
	array("exclude-header", &cfg.ExcludeHeader)
	array("exclude-body", &cfg.ExcludeBody)
	str("min-confidence", &minConfidence)
	slice("table-hint", &cfg.TableHints)
	if err == nil {
		cfg.Mailboxes, err = flags.GetIntSlice("mailbox")
	}
	integer("page-size", &cfg.PageSize)
	str("folder-map", &cfg.FolderMap)
	if err != nil {
		return Config{}, err
	}

	cfg.MinConfidence, err = model.ParseConfidence(minConfidence)
	if err != nil {
		return Config{}, fmt.Errorf("--min-confidence: %w", err)
	}

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	for i, f := range cfg.Formats {
		cfg.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.EDBPath == "" {
		return fmt.Errorf("--edb is required")
	}
	if len(cfg.Formats) == 0 {
		return fmt.Errorf("--format needs at least one of %s", strings.Join(Formats, ", "))
	}
	for _, f := range cfg.Formats {
		if !slices.Contains(Formats, f) {
			return fmt.Errorf("unknown --format %q", f)
		}
	}
	if (cfg.Wants(FormatEML) || cfg.Wants(FormatMbox) || cfg.Wants(FormatCatalog)) && cfg.OutputDir == "" {
		return fmt.Errorf("--output is required for eml, mbox and catalog exports")
	}
	if cfg.Wants(FormatIMAP) {
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required for --format imap")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required for --format imap")
		}
		if cfg.IMAPPass == "" && !cfg.DryRun {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	if cfg.PageSize < 0 {
		return fmt.Errorf("--page-size must not be negative")
	}
	if len(cfg.Mailboxes) > 0 && cfg.StoreDir == "" {
		return fmt.Errorf("--mailbox needs --store-dump, the raw scan cannot select mailboxes")
	}
	for _, n := range cfg.Mailboxes {
		if n < 0 {
			return fmt.Errorf("--mailbox must not be negative: %d", n)
		}
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".edb-recover", "state"), nil
}
