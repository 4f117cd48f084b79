package main

import (
	"fmt"
	"io"
	"os"

	"github.com/liamcoop/cstt/dataset"
	"github.com/spf13/cobra"
)

func (a *app) formatCmd() *cobra.Command {
	var (
		format string
		table  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "format [file]",
		Short: "Render a JSON dataset as JSON, CSV or SQL",
		Long: `Reads a JSON object or array of objects from file (or stdin when file is
omitted or "-") and writes it in the requested format. Unknown formats
render as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			payload, err := readInput(cmd, path)
			if err != nil {
				return err
			}

			data, err := dataset.Decode(payload)
			if err != nil {
				return err
			}
			f, ok := dataset.ParseFormat(format)
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown format %q, using json\n", format)
			}
			return writeOutput(cmd, output, []byte(dataset.Render(data, f, table)))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, csv or sql")
	cmd.Flags().StringVar(&table, "table", "", "table name for sql output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// readInput reads path, or the command's stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}

// writeOutput writes body to path, or to the command's stdout when path is
// empty. Terminal output gets a trailing newline.
func writeOutput(cmd *cobra.Command, path string, body []byte) error {
	if path == "" {
		out := cmd.OutOrStdout()
		if _, err := out.Write(body); err != nil {
			return err
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			_, err := io.WriteString(out, "\n")
			return err
		}
		return nil
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}
