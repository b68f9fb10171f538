// Package folders maps Exchange folder identifiers to display names.
//
// Folder ids are matched on their last 20 hex characters ("short id"). Characters
// 8 to 12 of the short id hold the folder number, which identifies the well-known
// folders even when the full id is not in the table.
package folders

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const shortIDLen = 20

// Resolver names a folder from its hex encoded id.
type Resolver interface {
	Name(folderIDHex string) string
}

// Table is a static lookup table. Keys are lower-case hex.
type Table struct {
	// IDToPath maps short ids to full folder paths.
	IDToPath map[string]string `json:"id_to_path"`
	// NumToName maps 4-digit folder numbers to names.
	NumToName map[string]string `json:"num_to_name"`
}

// DefaultTable returns the folder numbers every mailbox shares.
func DefaultTable() *Table {
	return &Table{
		IDToPath: map[string]string{},
		NumToName: map[string]string{
			"0100": "Root",
			"0101": "Top of Information Store",
			"0106": "Deleted Items",
			"0108": "IPM Subtree",
			"0109": "Sent Items",
			"010a": "Deleted Items",
			"010b": "Outbox",
			"010c": "Inbox",
			"010d": "Calendar",
			"010e": "Contacts",
			"010f": "Drafts",
			"0110": "Journal",
			"0111": "Notes",
			"0112": "Tasks",
			"0113": "Recoverable Items",
			"0114": "System/Hidden",
			"0115": "Deletions",
			"0116": "Versions",
			"0117": "Purges",
			"0118": "Calendar Logging",
		},
	}
}

// LoadTable reads a JSON table from path and merges it over DefaultTable.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read folder table: %w", err)
	}
	var extra Table
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse folder table %s: %w", path, err)
	}

	t := DefaultTable()
	for k, v := range extra.IDToPath {
		t.IDToPath[strings.ToLower(k)] = v
	}
	for k, v := range extra.NumToName {
		t.NumToName[strings.ToLower(k)] = v
	}
	return t, nil
}

// ShortID returns the last 20 characters of a lower-cased folder id.
func ShortID(folderIDHex string) string {
	id := strings.ToLower(strings.TrimSpace(folderIDHex))
	if len(id) > shortIDLen {
		return id[len(id)-shortIDLen:]
	}
	return id
}

// Path returns the full folder path for an id, if the table knows it.
func (t *Table) Path(folderIDHex string) (string, bool) {
	p, ok := t.IDToPath[ShortID(folderIDHex)]
	return p, ok
}

// Name returns the folder name for an id. Unknown ids get a synthetic
// "Folder_<suffix>" name; an empty id yields "".
func (t *Table) Name(folderIDHex string) string {
	short := ShortID(folderIDHex)
	if short == "" {
		return ""
	}
	if p, ok := t.IDToPath[short]; ok {
		p = strings.TrimRight(p, "/")
		return p[strings.LastIndex(p, "/")+1:]
	}
	if len(short) >= 12 {
		if name, ok := t.NumToName[short[8:12]]; ok {
			return name
		}
	}
	return "Folder_" + short[max(0, len(short)-8):]
}
