package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/parquet-go/parquet-go"
)

// Format represents an export format.
type Format int

const (
	Table Format = iota
	CSV
	JSON
	Parquet
)

// String stringifies the provided format.
func (f Format) String() string {
	switch f {
	case Table:
		return "table"
	case CSV:
		return "csv"
	case JSON:
		return "json"
	case Parquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// Extension returns the file extension of the format.
func (f Format) Extension() string {
	switch f {
	case Table:
		return ".txt"
	default:
		return "." + f.String()
	}
}

// ParseFormat parses the provided format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return Table, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "parquet":
		return Parquet, nil
	default:
		return Table, fmt.Errorf("unknown export format: %s", s)
	}
}

// Write renders the provided rows to w in the provided format. The title is only used
// by the table format.
func Write[T Row](w io.Writer, format Format, title string, rows []T) error {
	switch format {
	case Table:
		return writeTable(w, title, rows)
	case CSV:
		return writeCSV(w, rows)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []T{}
		}
		return enc.Encode(rows)
	case Parquet:
		return parquet.Write(w, rows)
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}
}

// WriteFile renders the provided rows to the file at path in the provided format.
func WriteFile[T Row](path string, format Format, title string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file '%s': %w", path, err)
	}

	err = Write(f, format, title, rows)
	if err != nil {
		f.Close()
		return fmt.Errorf("writing export file '%s': %w", path, err)
	}

	return f.Close()
}

// header returns the header of the row type T.
func header[T Row]() []string {
	var zero T
	return zero.Header()
}

func writeCSV[T Row](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	err := cw.Write(header[T]())
	if err != nil {
		return err
	}

	for idx := range rows {
		if err := cw.Write(rows[idx].Record()); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeTable[T Row](w io.Writer, title string, rows []T) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle("%s", title)
	}

	cols := header[T]()
	head := make(table.Row, 0, len(cols))
	for _, c := range cols {
		head = append(head, c)
	}
	tw.AppendHeader(head)

	for idx := range rows {
		record := rows[idx].Record()
		row := make(table.Row, 0, len(record))
		for _, field := range record {
			row = append(row, field)
		}
		tw.AppendRow(row)
	}

	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}
