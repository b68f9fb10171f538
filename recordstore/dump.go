package recordstore

import (
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhcgn/edb-recover/textenc"
)

// minHexCell is the shortest cell that marks a column as hex-encoded binary.
const minHexCell = 16

// OpenDump loads a directory of tab-separated table dumps, one file per table, as
// written by ESE export tools. The first row of each file names the columns and the
// table is named after the file with any .tsv or .txt extension removed.
//
// A column whose non-empty cells are all even-length hex, at least one of them
// minHexCell characters or longer, is treated as binary and hex-decoded. Other cells
// are text and are re-encoded as UTF-16LE, which is how the store keeps text columns.
func OpenDump(dir string) (*Memory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dump directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	m := NewMemory()
	for _, name := range names {
		if err := loadDumpFile(m, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DumpOpener returns an Opener that ignores the database path and loads dir.
func DumpOpener(dir string) Opener {
	return func(string) (Store, error) {
		return OpenDump(dir)
	}
}

func loadDumpFile(m *Memory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	columns, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, row)
	}

	binary := make([]bool, len(columns))
	for i := range columns {
		binary[i] = hexColumn(rows, i)
	}

	name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".tsv"), ".txt")
	m.AddTable(name, columns...)
	for _, row := range rows {
		values := make(map[string][]byte, len(columns))
		for i, col := range columns {
			if i >= len(row) || row[i] == "" {
				continue
			}
			if binary[i] {
				b, err := hex.DecodeString(row[i])
				if err != nil {
					return fmt.Errorf("decode %s.%s: %w", name, col, err)
				}
				values[col] = b
				continue
			}
			values[col] = textenc.EncodeUTF16LE(row[i])
		}
		if _, err := m.AddRecord(name, values); err != nil {
			return err
		}
	}
	return nil
}

func hexColumn(rows [][]string, i int) bool {
	long := false
	for _, row := range rows {
		if i >= len(row) || row[i] == "" {
			continue
		}
		v := row[i]
		if len(v)%2 != 0 || strings.Trim(v, "0123456789abcdefABCDEF") != "" {
			return false
		}
		if len(v) >= minHexCell {
			long = true
		}
	}
	return long
}
