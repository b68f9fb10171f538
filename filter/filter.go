package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/edb-recover/model"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
	MinConfidence model.Confidence
}

// Filter holds compiled regex patterns for filtering recovered messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool
	minRank        int

	mu    sync.Mutex
	stats Stats
}

// Stats counts decisions and which pattern caused them.
type Stats struct {
	Checked       int
	Allowed       int
	LowConfidence int
	IncludeHits   map[string]int
	ExcludeHits   map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		minRank:        opts.MinConfidence.Rank(),
		stats: Stats{
			IncludeHits: make(map[string]int),
			ExcludeHits: make(map[string]int),
		},
	}, nil
}

// Allows returns true if the message passes the confidence floor and the
// pattern criteria. Header patterns run against HeaderText(msg).
func (f *Filter) Allows(msg model.RecoveredMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Checked++

	if f.minRank > 0 && msg.Confidence.Rank() < f.minRank {
		f.stats.LowConfidence++
		return false
	}

	var headerText, bodyText string
	if f.needHeaderText {
		headerText = HeaderText(msg)
	}
	if f.needBodyText {
		bodyText = msg.Body
	}

	if f.includeMode {
		re := firstMatch(f.includeHeader, headerText)
		if re == nil {
			re = firstMatch(f.includeBody, bodyText)
		}
		if re == nil {
			return false
		}
		f.stats.IncludeHits[re.String()]++
		f.stats.Allowed++
		return true
	}

	if f.excludeMode {
		re := firstMatch(f.excludeHeader, headerText)
		if re == nil {
			re = firstMatch(f.excludeBody, bodyText)
		}
		if re != nil {
			f.stats.ExcludeHits[re.String()]++
			return false
		}
	}

	f.stats.Allowed++
	return true
}

// GetStats returns a copy of the decision counters.
func (f *Filter) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.stats
	out.IncludeHits = make(map[string]int, len(f.stats.IncludeHits))
	for k, v := range f.stats.IncludeHits {
		out.IncludeHits[k] = v
	}
	out.ExcludeHits = make(map[string]int, len(f.stats.ExcludeHits))
	for k, v := range f.stats.ExcludeHits {
		out.ExcludeHits[k] = v
	}
	return out
}

// HeaderText renders the header-like fields of a recovered message one per
// line, in "Name: value" form, so header patterns written for mail headers
// keep working.
func HeaderText(msg model.RecoveredMessage) string {
	var sb strings.Builder
	line := func(name, value string) {
		if value == "" {
			return
		}
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	line("Subject", msg.Subject)
	if msg.SenderName != "" && msg.Sender != "" {
		line("From", fmt.Sprintf("%s <%s>", msg.SenderName, msg.Sender))
	} else {
		line("From", msg.Sender)
	}
	line("To", strings.Join(msg.Recipients, ", "))
	line("Message-ID", msg.MessageID)
	line("X-Folder", msg.Folder)
	line("X-Recovery-Tier", string(msg.Tier))
	line("X-Recovery-Confidence", string(msg.Confidence))
	return sb.String()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func firstMatch(patterns []*regexp.Regexp, text string) *regexp.Regexp {
	for _, re := range patterns {
		if re.MatchString(text) {
			return re
		}
	}
	return nil
}
