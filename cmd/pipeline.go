// Package cmd holds the edb-recover subcommands and the pipeline wiring they
// share with the root command.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/edb-recover/folders"
	"github.com/dhcgn/edb-recover/recordstore"
	"github.com/dhcgn/edb-recover/recovery"
)

// Source describes where messages are recovered from.
type Source struct {
	Path       string
	StoreDir   string
	FolderMap  string
	TableHints []string
	Mailboxes  []int
	PageSize   int
	OnSkip     func(recovery.Skip)
}

// NewPipeline builds a recovery pipeline for src. Without a store dump only the
// raw scan can run.
func NewPipeline(src Source, logger *slog.Logger) (*recovery.Pipeline, error) {
	opts := recovery.Options{
		Path:       src.Path,
		TableHints: src.TableHints,
		Mailboxes:  src.Mailboxes,
		PageSize:   src.PageSize,
		OnSkip:     src.OnSkip,
	}
	if src.StoreDir != "" {
		opts.Opener = recordstore.DumpOpener(src.StoreDir)
	}
	if src.FolderMap != "" {
		table, err := folders.LoadTable(src.FolderMap)
		if err != nil {
			return nil, fmt.Errorf("load folder map: %w", err)
		}
		opts.Folders = table
	}
	return recovery.New(opts, logger)
}

// Register adds every subcommand to root.
func Register(root *cobra.Command) {
	root.AddCommand(newAnalyzeCmd(), newStatsCmd())
}
