package recovery

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dhcgn/edb-recover/recordstore"
	"github.com/dhcgn/edb-recover/textenc"
)

// MailboxTable lists the mailboxes of a store, one record per mailbox.
const MailboxTable = "Mailbox"

var ErrNoMailboxTable = errors.New("mailbox table not found")

// Mailbox is one entry of the mailbox table.
type Mailbox struct {
	Number       int    `json:"number"`
	MessageCount int    `json:"message_count"`
	GUID         string `json:"guid,omitempty"`
	// Table is the message table of the mailbox. Records is its record count, or
	// -1 when the table is missing from the store.
	Table   string `json:"table"`
	Records int    `json:"records"`
}

// MessageTableName returns the name of the message table of mailbox number.
func MessageTableName(number int) string {
	return "Message_" + strconv.Itoa(number)
}

// ListMailboxes reads the mailbox table of store. Records without a readable
// mailbox number are left out.
func ListMailboxes(store recordstore.Store) ([]Mailbox, error) {
	names, err := store.TableNames()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	table := findTable(names, MailboxTable)
	if table == "" {
		return nil, ErrNoMailboxTable
	}
	records, err := store.RecordCount(table)
	if err != nil {
		return nil, fmt.Errorf("count mailboxes: %w", err)
	}

	var mailboxes []Mailbox
	for idx := 0; idx < records; idx++ {
		raw, err := recordstore.Read(store, table, idx, "MailboxNumber")
		if err != nil {
			return nil, fmt.Errorf("read mailbox %d: %w", idx, err)
		}
		number, ok := decodeInt(raw)
		if !ok {
			continue
		}
		mb := Mailbox{Number: number, Table: MessageTableName(number), Records: -1}

		if raw, err := recordstore.Read(store, table, idx, "MessageCount"); err == nil {
			mb.MessageCount, _ = decodeInt(raw)
		}
		if raw, err := recordstore.Read(store, table, idx, "MailboxGuid"); err == nil && len(raw) > 0 {
			mb.GUID = hex.EncodeToString(raw)
		}
		if name := findTable(names, mb.Table); name != "" {
			mb.Table = name
			if n, err := store.RecordCount(name); err == nil {
				mb.Records = n
			}
		}
		mailboxes = append(mailboxes, mb)
	}
	return mailboxes, nil
}

func findTable(names []string, want string) string {
	for _, name := range names {
		if strings.EqualFold(name, want) {
			return name
		}
	}
	return ""
}

// decodeInt reads an integer column. Dumped values are decimal text in ASCII or
// UTF-16LE; values read from the store are little-endian of width 1, 2, 4 or 8.
func decodeInt(raw []byte) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
		return n, true
	}
	if s, _, ok := textenc.Decode(raw, []textenc.Encoding{textenc.UTF16LE}); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	switch len(raw) {
	case 1:
		return int(raw[0]), true
	case 2:
		return int(binary.LittleEndian.Uint16(raw)), true
	case 4:
		return int(int32(binary.LittleEndian.Uint32(raw))), true
	case 8:
		return int(int64(binary.LittleEndian.Uint64(raw))), true
	}
	return 0, false
}
