package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/edb-recover/catalog"
	"github.com/dhcgn/edb-recover/cmd"
	"github.com/dhcgn/edb-recover/config"
	"github.com/dhcgn/edb-recover/export"
	"github.com/dhcgn/edb-recover/imap"
	"github.com/dhcgn/edb-recover/mbox"
	"github.com/dhcgn/edb-recover/progress"
	"github.com/dhcgn/edb-recover/recovery"
	"github.com/dhcgn/edb-recover/runner"
	"github.com/dhcgn/edb-recover/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "edb-recover",
		Short: "Recover mail from damaged Exchange databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting edb-recover", "edb", cfg.EDBPath, "formats", cfg.Formats, "output", cfg.OutputDir, "dryRun", cfg.DryRun)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	cmd.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	var r *runner.Runner
	pipeline, err := cmd.NewPipeline(cmd.Source{
		Path:       cfg.EDBPath,
		StoreDir:   cfg.StoreDir,
		FolderMap:  cfg.FolderMap,
		TableHints: cfg.TableHints,
		Mailboxes:  cfg.Mailboxes,
		PageSize:   cfg.PageSize,
		OnSkip: func(s recovery.Skip) {
			r.EmitEvent(stats.Event{Stage: stats.StageRecovery, Type: stats.EventTypeSkipped, Tier: s.Tier, Err: s.Err})
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("recovery.New: %w", err)
	}

	var exporters []export.Exporter
	if !cfg.DryRun {
		exporters, err = buildExporters(cfg, logger)
		if err != nil {
			return err
		}
	}

	r, err = runner.New(cfg, logger)
	if err != nil {
		closeExporters(exporters)
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)
	progress.NewReporter(r, progress.New(cfg.EDBPath, cfg.LogLevel), logger)

	if _, err := export.NewStage(r, exporters, logger); err != nil {
		closeExporters(exporters)
		return r.Abort(fmt.Errorf("export.NewStage: %w", err))
	}

	report := pipeline.Report()
	logger.Info("corruption analysis", "kind", report.Kind, "severity", report.Severity, "recoverable", report.Recoverable, "pageSize", report.PageSize)
	recovery.NewProducer(pipeline, r)

	return r.Start()
}

func closeExporters(exporters []export.Exporter) {
	for _, e := range exporters {
		_ = e.Close()
	}
}

func buildExporters(cfg config.Config, logger *slog.Logger) ([]export.Exporter, error) {
	var exporters []export.Exporter

	for _, format := range cfg.Formats {
		var (
			e   export.Exporter
			err error
		)
		switch format {
		case config.FormatEML:
			e, err = export.NewEMLWriter(filepath.Join(cfg.OutputDir, "eml"), logger)
		case config.FormatMbox:
			e, err = mbox.NewWriter(filepath.Join(cfg.OutputDir, "mbox"), logger)
		case config.FormatCatalog:
			e, err = catalog.Open(filepath.Join(cfg.OutputDir, catalog.FileName), logger)
		case config.FormatIMAP:
			e, err = imap.NewExporter(imap.Options{
				Host:               cfg.IMAPHost,
				Port:               cfg.IMAPPort,
				Username:           cfg.IMAPUser,
				Password:           cfg.IMAPPass,
				UseTLS:             cfg.UseTLS,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
				TargetFolder:       cfg.TargetFolder,
			}, logger)
		default:
			err = fmt.Errorf("unknown format %q", format)
		}
		if err != nil {
			closeExporters(exporters)
			return nil, fmt.Errorf("%s exporter: %w", format, err)
		}
		exporters = append(exporters, e)
	}
	return exporters, nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("edb-recover-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
