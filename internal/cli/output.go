package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// printer renders command output as an aligned table or as JSON.
type printer struct {
	w       io.Writer
	jsonFmt bool
}

func newPrinter(w io.Writer, output string) (*printer, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "table":
		return &printer{w: w}, nil
	case "json":
		return &printer{w: w, jsonFmt: true}, nil
	default:
		return nil, fmt.Errorf("unsupported output %q (use table or json)", output)
	}
}

// table writes rows under headers. In JSON mode v is emitted instead, so
// machine output keeps its native types.
func (p *printer) table(headers []string, rows [][]string, v interface{}) error {
	if p.jsonFmt {
		return p.json(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p *printer) json(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(p.w, string(b))
	return nil
}
