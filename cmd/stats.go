package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/spf13/cobra"

	"github.com/dhcgn/edb-recover/filter"
	"github.com/dhcgn/edb-recover/mbox"
	"github.com/dhcgn/edb-recover/model"
	"github.com/dhcgn/edb-recover/recovery"
	"github.com/dhcgn/edb-recover/stats"
)

// Tracked report categories, in print order.
var statsCategories = []string{"Subject", "From", "Folder", "Tier", "Confidence"}

type statsOptions struct {
	reportDir  string
	topN       int
	storeDir   string
	folderMap  string
	tableHints []string
	filters    filter.Options
	minConf    string
}

func newStatsCmd() *cobra.Command {
	var o statsOptions

	cmd := &cobra.Command{
		Use:   "stats [edb or mbox file]",
		Short: "Recover without exporting, or read an exported mbox, and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			o.filters.MinConfidence, err = model.ParseConfidence(o.minConf)
			if err != nil {
				return fmt.Errorf("--min-confidence: %w", err)
			}
			f, err := filter.New(o.filters)
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			counter := newCounter()
			each := func(msg model.RecoveredMessage) {
				if !f.Allows(msg) {
					counter.skipped++
					return
				}
				counter.add(msg)
				if counter.total%250 == 0 {
					counter.print(f, o.topN, true)
				}
			}

			path := args[0]
			fmt.Println("Analyzing:", path)
			if strings.EqualFold(filepath.Ext(path), ".mbox") {
				err = mbox.Read(path, func(m *mbox.Message) error {
					each(fromMbox(m))
					return nil
				})
			} else {
				err = recoverAll(cmd.Context(), path, o, each)
			}
			if err != nil {
				return err
			}

			counter.print(f, o.topN, false)

			if err := saveCSVReports(counter.values, statsCategories, o.reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Printf("\nReports saved to directory: %s\n", o.reportDir)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&o.topN, "top", "t", 10, "Number of top items to display in statistics")
	flags.StringVar(&o.storeDir, "store-dump", "", "Directory of tab-separated table dumps exported from the database")
	flags.StringVar(&o.folderMap, "folder-map", "", "JSON file with folder mappings")
	flags.StringSliceVar(&o.tableHints, "table-hint", nil, "Substrings identifying message tables")
	flags.StringArrayVar(&o.filters.IncludeHeader, "include-header", nil, "Regex allow-list applied to recovered headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&o.filters.IncludeBody, "include-body", nil, "Regex allow-list applied to recovered bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&o.filters.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to recovered headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&o.filters.ExcludeBody, "exclude-body", nil, "Regex block-list applied to recovered bodies (mutually exclusive with include flags)")
	flags.StringVar(&o.minConf, "min-confidence", "", "Ignore messages below this confidence: low, medium, high")
	return cmd
}

func recoverAll(ctx context.Context, path string, o statsOptions, each func(model.RecoveredMessage)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	skipped := 0
	pipeline, err := NewPipeline(Source{
		Path:       path,
		StoreDir:   o.storeDir,
		FolderMap:  o.folderMap,
		TableHints: o.tableHints,
		OnSkip:     func(recovery.Skip) { skipped++ },
	}, nil)
	if err != nil {
		return err
	}
	for msg, err := range pipeline.Messages(ctx) {
		if err != nil {
			return err
		}
		each(msg)
	}
	if skipped > 0 {
		fmt.Printf("Skipped %d undecodable records or pages\n", skipped)
	}
	return nil
}

// fromMbox maps an exported message back onto the recovered model so the same
// filter and counters apply to both inputs.
func fromMbox(m *mbox.Message) model.RecoveredMessage {
	msg := model.RecoveredMessage{
		Folder:     m.Header.Get("X-Folder"),
		Tier:       model.Tier(m.Header.Get("X-Recovery-Tier")),
		Confidence: model.Confidence(m.Header.Get("X-Recovery-Confidence")),
		Body:       string(m.Body),
	}
	msg.ID, _ = m.Header.Text("X-Recovery-Source")
	msg.Subject, _ = m.Header.Subject()
	msg.MessageID, _ = m.Header.MessageID()
	if from, err := m.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
		msg.SenderName = from[0].Name
	}
	if to, err := m.Header.AddressList("To"); err == nil {
		for _, a := range to {
			msg.Recipients = append(msg.Recipients, a.Address)
		}
	}
	if date, err := m.Header.Date(); err == nil {
		msg.Date = date
	}
	return msg
}

type counter struct {
	values  map[string]map[string]int
	total   int
	skipped int
}

func newCounter() *counter {
	c := &counter{values: make(map[string]map[string]int)}
	for _, name := range statsCategories {
		c.values[name] = make(map[string]int)
	}
	return c
}

func (c *counter) add(msg model.RecoveredMessage) {
	c.total++
	c.values["Subject"][msg.DisplaySubject()]++
	if msg.Sender != "" {
		c.values["From"][(&mail.Address{Name: msg.SenderName, Address: msg.Sender}).String()]++
	}
	if msg.Folder != "" {
		c.values["Folder"][msg.Folder]++
	}
	if msg.Tier != "" {
		c.values["Tier"][string(msg.Tier)]++
	}
	if msg.Confidence != "" {
		c.values["Confidence"][string(msg.Confidence)]++
	}
}

func (c *counter) print(f *filter.Filter, topN int, clear bool) {
	if clear {
		// ANSI escape code to clear screen and move cursor to top-left
		fmt.Print("\033[H\033[2J")
	}
	all := c.total + c.skipped
	var filterPercent float64
	if all > 0 {
		filterPercent = float64(c.skipped) / float64(all) * 100
	}
	fmt.Printf("Processed %d messages (skipped %d by filters, %.2f%%)...\n\n", c.total, c.skipped, filterPercent)

	fs := f.GetStats()
	if fs.LowConfidence > 0 {
		fmt.Printf("Below confidence floor: %d\n\n", fs.LowConfidence)
	}
	if len(fs.IncludeHits) > 0 {
		fmt.Println("Include filter hits:")
		printFilterHits(fs.IncludeHits)
		fmt.Println()
	}
	if len(fs.ExcludeHits) > 0 {
		fmt.Println("Exclude filter hits:")
		printFilterHits(fs.ExcludeHits)
		fmt.Println()
	}

	for _, name := range statsCategories {
		fmt.Printf("Top %d %s:\n", topN, name)
		stats.PrettyPrintTop(c.values[name], topN)
		fmt.Println()
	}
}

func printFilterHits(hits map[string]int) {
	for _, p := range stats.Top(hits, -1) {
		fmt.Printf("  ✓ %s: %d hits\n", p.Key, p.Value)
	}
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range categories {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(name)))
		if err := writeCSV(filePath, stats.Top(counter[name], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
