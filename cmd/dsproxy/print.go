package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
)

func slotRows(tts *tupleslot.TupleTableSlot) [][]string {
	rows := make([][]string, 0, len(tts.Raw))
	for _, raw := range tts.Raw {
		row := make([]string, 0, len(raw))
		for _, v := range raw {
			row = append(row, string(v))
		}
		rows = append(rows, row)
	}
	return rows
}

func printSlot(w io.Writer, tts *tupleslot.TupleTableSlot) error {
	return printTable(w, tts.ColumnNames(), slotRows(tts))
}

func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(tw, "(%d rows)\n", len(rows)); err != nil {
		return err
	}
	return tw.Flush()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
