package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// column renders one field of a row.
type column[T any] struct {
	heading string
	value   func(T) string
}

func col[T any](heading string, value func(T) string) column[T] {
	return column[T]{heading: heading, value: value}
}

var headingCase = cases.Upper(language.English)

// printTable writes rows aligned under upper-case headings.
func printTable[T any](w io.Writer, columns []column[T], rows []T) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headings := make([]string, len(columns))
	for i, c := range columns {
		headings[i] = headingCase.String(c.heading)
	}
	fmt.Fprintln(tw, strings.Join(headings, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = c.value(row)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func itoa[N ~int | ~int64](n N) string {
	return strconv.FormatInt(int64(n), 10)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// orDash keeps empty cells visible in aligned output.
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
