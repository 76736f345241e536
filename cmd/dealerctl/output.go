package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

var outputFormat string // "table", "json"

// printResult outputs data in the chosen format.
func printResult(data any) {
	printTo(os.Stdout, data)
}

func printTo(out io.Writer, data any) {
	if data == nil {
		return
	}
	if outputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.Encode(data) //nolint:errcheck
		return
	}
	switch v := data.(type) {
	case []any:
		printRows(out, v)
	case map[string]any:
		printRecord(out, v)
	default:
		fmt.Fprintln(out, v)
	}
}

// printRecord prints one object as key/value lines.
func printRecord(out io.Writer, data map[string]any) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(data) {
		fmt.Fprintf(w, "%s\t%s\n", k, cell(data[k]))
	}
	w.Flush()
}

// printRows prints a list of objects as a table, id first.
func printRows(out io.Writer, rows []any) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No records.")
		return
	}
	cols := map[string]any{}
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			for k := range m {
				cols[k] = nil
			}
		}
	}
	keys := sortedKeys(cols)
	for i, k := range keys {
		if k == "id" {
			keys = append([]string{"id"}, append(keys[:i:i], keys[i+1:]...)...)
			break
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(keys, "\t")))
	for _, r := range rows {
		m, _ := r.(map[string]any)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = cell(m[k])
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
	w.Flush()
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case map[string]any, []any:
		b, _ := json.Marshal(val)
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
