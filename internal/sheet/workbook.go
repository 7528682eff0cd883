// Package sheet turns ground-truth spreadsheets into the canonical Info and
// Transactions tables of a training record.
package sheet

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ErrUnreadable marks a spreadsheet that could not be opened or parsed.
var ErrUnreadable = eris.New("unreadable spreadsheet")

// Sheet is one worksheet with decoded cell values. A value is nil, string,
// float64, bool or time.Time.
type Sheet struct {
	Name string
	Rows [][]any
}

// ReadWorkbook opens an XLSX file and returns its sheets in storage order.
func ReadWorkbook(path string) (sheets []Sheet, err error) {
	// tealeg/xlsx panics on some malformed archives.
	defer func() {
		if r := recover(); r != nil {
			sheets = nil
			err = eris.Wrapf(ErrUnreadable, "xlsx: open %s: %v", path, r)
		}
	}()

	f, openErr := xlsx.OpenFile(path)
	if openErr != nil {
		return nil, eris.Wrapf(ErrUnreadable, "xlsx: open %s: %v", path, openErr)
	}

	sheets = make([]Sheet, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		sheets = append(sheets, decodeSheet(s, f.Date1904))
	}
	return sheets, nil
}

func decodeSheet(s *xlsx.Sheet, date1904 bool) Sheet {
	out := Sheet{Name: s.Name, Rows: make([][]any, 0, len(s.Rows))}
	for _, row := range s.Rows {
		if row == nil {
			out.Rows = append(out.Rows, nil)
			continue
		}
		values := make([]any, len(row.Cells))
		for j, cell := range row.Cells {
			values[j] = cellValue(cell, date1904)
		}
		out.Rows = append(out.Rows, values)
	}
	return out
}

func cellValue(cell *xlsx.Cell, date1904 bool) any {
	if cell == nil {
		return nil
	}

	switch cell.Type() {
	case xlsx.CellTypeBool:
		return cell.Bool()
	case xlsx.CellTypeNumeric:
		if cell.Value == "" {
			return nil
		}
		if cell.IsTime() {
			if t, err := cell.GetTime(date1904); err == nil {
				return t.Round(time.Second)
			}
		}
		if f, err := cell.Float(); err == nil {
			return f
		}
		return cell.Value
	case xlsx.CellTypeDate:
		// ISO 8601 date cells (t="d").
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, cell.Value); err == nil {
				return t.Round(time.Second)
			}
		}
		return nilIfEmpty(cell.Value)
	case xlsx.CellTypeError:
		return nil
	default:
		return nilIfEmpty(cell.String())
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// text renders a cell value the way it is compared against labels and used
// as a column name.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		return x.Format(DateTimeLayout)
	default:
		return fmt.Sprint(x)
	}
}
