package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gabrielmiguelok/pagestudio/pkg/section"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <page>",
	Short: "Print a page document as the studio would load it",
	Long: `Prints the stored document of a page after normalization: missing
sections get their defaults and unknown keys are kept. A page that was
never saved exports its defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, ok := section.Templates()[args[0]]
		if !ok {
			return fmt.Errorf("unknown page %q", args[0])
		}

		b, err := openBackends(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		doc, err := b.repo.Get(cmd.Context(), tmpl.Name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		page, err := tmpl.Decode(doc)
		if err != nil {
			return err
		}
		return writeExport(cmd.OutOrStdout(), page, exportFormat)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format (json, msgpack)")
}

func writeExport(w io.Writer, page *section.Config, format string) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	case "msgpack":
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := msgpack.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
