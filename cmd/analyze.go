package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/edb-recover/corruption"
	"github.com/dhcgn/edb-recover/recordstore"
	"github.com/dhcgn/edb-recover/recovery"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		storeDir string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [edb file]",
		Short: "Check a database for corruption and show what can be recovered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := corruption.NewAnalyzer(args[0], nil).Analyze()

			var summary storeSummary
			if storeDir != "" {
				var err error
				summary, err = summarizeStore(storeDir)
				if err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analysis{Report: report, Mailboxes: summary.mailboxes})
			}

			printReport(report)
			if len(summary.tables) > 0 {
				pterm.DefaultSection.Println("Record store")
				data := append(pterm.TableData{{"Table", "Records", "Columns"}}, summary.tables...)
				if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
					return err
				}
			}
			if storeDir != "" {
				if err := printMailboxes(summary.mailboxes); err != nil {
					return err
				}
			}
			if !report.Recoverable {
				return fmt.Errorf("%s is not recoverable: %s", args[0], report.Details)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store-dump", "", "Directory of tab-separated table dumps to summarise, including the mailbox list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(r corruption.Report) {
	pterm.DefaultSection.Println("Corruption report")
	data := pterm.TableData{
		{"Field", "Value"},
		{"Path", r.Path},
		{"File size", strconv.FormatInt(r.FileSize, 10)},
		{"Page size", strconv.Itoa(r.PageSize)},
		{"Pages", strconv.FormatInt(r.PageCount(), 10)},
		{"State", r.State.String()},
		{"Signature offset", strconv.Itoa(r.SignatureOffset)},
		{"Corrupted", strconv.FormatBool(r.Corrupted)},
		{"Kind", string(r.Kind)},
		{"Severity", r.Severity.String()},
		{"Recoverable", strconv.FormatBool(r.Recoverable)},
	}
	if r.Details != "" {
		data = append(data, []string{"Details", r.Details})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	for _, w := range r.Warnings {
		pterm.Warning.Println(w)
	}
	switch {
	case !r.Recoverable:
		pterm.Error.Println("Recovery is not possible")
	case r.Corrupted:
		pterm.Warning.Println("Database is damaged; structured recovery may fall back to a raw scan")
	default:
		pterm.Success.Println("Database header looks healthy")
	}
}

// analysis is the --json output of analyze.
type analysis struct {
	corruption.Report
	Mailboxes []recovery.Mailbox `json:"mailboxes,omitempty"`
}

type storeSummary struct {
	tables    [][]string
	mailboxes []recovery.Mailbox
}

func summarizeStore(dir string) (storeSummary, error) {
	var summary storeSummary
	store, err := recordstore.OpenDump(dir)
	if err != nil {
		return summary, err
	}
	defer store.Close()

	names, err := store.TableNames()
	if err != nil {
		return summary, err
	}
	summary.tables = make([][]string, 0, len(names))
	for _, name := range names {
		count, err := store.RecordCount(name)
		if err != nil {
			return summary, err
		}
		cols, err := store.Columns(name)
		if err != nil {
			return summary, err
		}
		summary.tables = append(summary.tables, []string{name, strconv.Itoa(count), strings.Join(cols, ", ")})
	}

	summary.mailboxes, err = recovery.ListMailboxes(store)
	if err != nil && !errors.Is(err, recovery.ErrNoMailboxTable) {
		return summary, fmt.Errorf("list mailboxes: %w", err)
	}
	return summary, nil
}

func mailboxRows(mailboxes []recovery.Mailbox) [][]string {
	rows := make([][]string, 0, len(mailboxes))
	for _, mb := range mailboxes {
		records := "missing"
		if mb.Records >= 0 {
			records = strconv.Itoa(mb.Records)
		}
		rows = append(rows, []string{strconv.Itoa(mb.Number), strconv.Itoa(mb.MessageCount), mb.Table, records, mb.GUID})
	}
	return rows
}

func printMailboxes(mailboxes []recovery.Mailbox) error {
	pterm.DefaultSection.Println("Mailboxes")
	if len(mailboxes) == 0 {
		pterm.Info.Println("No mailbox table found")
		return nil
	}
	data := append(pterm.TableData{{"Mailbox", "Messages", "Table", "Records", "GUID"}}, mailboxRows(mailboxes)...)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Println("Recover a single mailbox with --mailbox <number>")
	return nil
}
