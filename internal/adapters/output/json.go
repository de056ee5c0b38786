package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONPrinter prints indented JSON.
type JSONPrinter struct {
	Out io.Writer
}

// Print renders JSON output.
func (p JSONPrinter) Print(v any) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
