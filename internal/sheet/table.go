package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Schema names the columns and labels that identify each table role.
type Schema struct {
	MarkerLabel       string
	DescriptionColumn string
	AmountColumn      string
}

// Role is a set of table roles a sheet qualifies for.
type Role uint8

const (
	RoleInfo Role = 1 << iota
	RoleTransactions

	Unclassified Role = 0
)

// Has reports whether r includes role.
func (r Role) Has(role Role) bool { return r&role != 0 }

func (r Role) String() string {
	var parts []string
	if r.Has(RoleInfo) {
		parts = append(parts, "info")
	}
	if r.Has(RoleTransactions) {
		parts = append(parts, "transactions")
	}
	if len(parts) == 0 {
		return "unclassified"
	}
	return strings.Join(parts, "+")
}

// Classify decides which roles a sheet can fill. A sheet is a transactions
// table when its header row (the first non-blank row) literally contains both
// configured column names, and an info table when any cell equals the marker
// label.
func Classify(s Sheet, schema Schema) Role {
	var role Role

	if h := headerIndex(s); h >= 0 {
		var hasDesc, hasAmount bool
		for _, v := range s.Rows[h] {
			name, ok := v.(string)
			if !ok {
				continue
			}
			if name == schema.DescriptionColumn {
				hasDesc = true
			}
			if name == schema.AmountColumn {
				hasAmount = true
			}
		}
		if hasDesc && hasAmount {
			role |= RoleTransactions
		}
	}

	if schema.MarkerLabel != "" && containsLabel(s, schema.MarkerLabel) {
		role |= RoleInfo
	}
	return role
}

func containsLabel(s Sheet, label string) bool {
	for _, row := range s.Rows {
		for _, v := range row {
			if str, ok := v.(string); ok && str == label {
				return true
			}
		}
	}
	return false
}

// FindMarker returns the cutoff marker stored next to label. The first sheet
// containing the label is searched for a row whose first cell equals the
// label; the marker is that row's second cell. Later sheets are not consulted.
func FindMarker(sheets []Sheet, label string) (string, bool) {
	for _, s := range sheets {
		if !containsLabel(s, label) {
			continue
		}
		for _, row := range s.Rows {
			if len(row) < 2 {
				continue
			}
			if first, ok := row[0].(string); !ok || first != label {
				continue
			}
			marker := text(row[1])
			if marker == "" {
				return "", false
			}
			return marker, true
		}
		return "", false
	}
	return "", false
}

// Row is an ordered mapping of column name to a JSON-safe value.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(c); err != nil {
			return nil, err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(r.Values[i]); err != nil {
			return nil, eris.Wrapf(err, "sheet: encode column %q", c)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}

// Tables holds the two canonical tables of a statement.
type Tables struct {
	Info         []Row
	Transactions []Row

	InfoSheet         string
	TransactionsSheet string
}

// InfoRows returns the number of info rows.
func (t *Tables) InfoRows() int { return len(t.Info) }

// TransactionRows returns the number of transaction rows.
func (t *Tables) TransactionRows() int { return len(t.Transactions) }

// Extract builds the info and transactions tables from the first sheet
// qualifying for each role. A role with no qualifying sheet yields an empty
// table. One sheet may fill both roles.
func Extract(sheets []Sheet, schema Schema) *Tables {
	t := &Tables{Info: []Row{}, Transactions: []Row{}}
	var haveInfo, haveTx bool

	for _, s := range sheets {
		if haveInfo && haveTx {
			break
		}
		role := Classify(s, schema)
		if !haveInfo && role.Has(RoleInfo) {
			t.Info = rows(s)
			t.InfoSheet = s.Name
			haveInfo = true
		}
		if !haveTx && role.Has(RoleTransactions) {
			t.Transactions = rows(s)
			t.TransactionsSheet = s.Name
			haveTx = true
		}
	}
	return t
}

// headerIndex returns the index of the first non-blank row, or -1.
func headerIndex(s Sheet) int {
	for i, r := range s.Rows {
		if usedWidth(r) > 0 {
			return i
		}
	}
	return -1
}

// rows converts a sheet into records keyed by its header row. Blank rows
// above the header are skipped.
func rows(s Sheet) []Row {
	out := []Row{}
	h := headerIndex(s)
	if h < 0 {
		return out
	}
	header, body := s.Rows[h], s.Rows[h+1:]

	width := usedWidth(header)
	for _, r := range body {
		if w := usedWidth(r); w > width {
			width = w
		}
	}
	columns := headerNames(header, width)

	for _, r := range body {
		if usedWidth(r) == 0 {
			continue
		}
		values := make([]any, width)
		for i := 0; i < width && i < len(r); i++ {
			values[i] = Normalize(r[i])
		}
		out = append(out, Row{Columns: columns, Values: values})
	}
	return out
}

// usedWidth returns one past the index of the last non-empty cell.
func usedWidth(row []any) int {
	for i := len(row) - 1; i >= 0; i-- {
		if row[i] != nil {
			return i + 1
		}
	}
	return 0
}

func headerNames(header []any, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	taken := make(map[string]bool, width)

	for i := 0; i < width; i++ {
		var v any
		if i < len(header) {
			v = header[i]
		}
		name := text(v)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		taken[name] = true
		names[i] = name
	}

	// Duplicate names get ".1", ".2", ... suffixes that do not collide with
	// an existing header.
	for i, name := range names {
		n, dup := seen[name]
		if !dup {
			seen[name] = 1
			continue
		}
		for ; ; n++ {
			candidate := fmt.Sprintf("%s.%d", name, n)
			if !taken[candidate] {
				names[i] = candidate
				taken[candidate] = true
				seen[name] = n + 1
				break
			}
		}
	}
	return names
}
