package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/liamcoop/cstt/client"
	"github.com/liamcoop/cstt/dataset"
	"github.com/liamcoop/cstt/testdata"
	"github.com/spf13/cobra"
)

func (a *app) testDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testdata",
		Short: "Inspect stored test data",
	}

	var active bool
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List the test data of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.client().ListTestData(cmd.Context(), args[0], active)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFORMAT\tRECORDS\tACTIVE\tFIELDS")
			for _, s := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\t%s\n",
					s.ID, s.Name, s.Format, s.Records, s.Active, strings.Join(s.Fields, ","))
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&active, "active", false, "only list active test data")

	cmd.AddCommand(list)
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	var (
		templateArg string
		name        string
		count       int
		seed        uint64
		format      string
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "generate <project-id>",
		Short: "Generate records from a template",
		Long: `Generates records on the server from a template given as a JSON file,
inline JSON, or "-" for stdin. With --save the result is stored and its id
printed; otherwise the records are printed in --format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template, err := loadTemplate(cmd, templateArg)
			if err != nil {
				return err
			}

			req := client.GenerateRequest{
				Name:     name,
				Template: template,
				Count:    count,
				Format:   format,
				Save:     save,
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			td, err := a.client().Generate(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if save {
				fmt.Fprintln(cmd.OutOrStdout(), td.ID)
				return nil
			}
			return writeOutput(cmd, "", []byte(dataset.RenderString(td.Data, format, td.Name)))
		},
	}
	cmd.Flags().StringVarP(&templateArg, "template", "t", "", "template JSON, a path to it, or - for stdin")
	cmd.Flags().StringVarP(&name, "name", "n", "", "test data name (defaults to the template name)")
	cmd.Flags().IntVarP(&count, "count", "c", testdata.DefaultRecordCount, "number of records")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible output")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "format stored with the test data and used for printing")
	cmd.Flags().BoolVar(&save, "save", false, "store the generated test data")
	cmd.MarkFlagRequired("template")
	return cmd
}

// loadTemplate accepts inline JSON, "-" for stdin, or a file path
func loadTemplate(cmd *cobra.Command, arg string) (testdata.Template, error) {
	var (
		raw []byte
		err error
	)
	switch trimmed := strings.TrimSpace(arg); {
	case strings.HasPrefix(trimmed, "{"):
		raw = []byte(trimmed)
	default:
		raw, err = readInput(cmd, trimmed)
		if err != nil {
			return testdata.Template{}, err
		}
	}

	var t testdata.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return testdata.Template{}, fmt.Errorf("invalid template: %w", err)
	}
	if err := testdata.ValidateTemplate(t); err != nil {
		return testdata.Template{}, fmt.Errorf("invalid template: %w", err)
	}
	return t, nil
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		opts   client.DownloadOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "download <project-id> <test-data-id>",
		Short: "Download stored test data",
		Long: `Downloads test data rendered by the server. --filter takes an expression
over the variable row, e.g. 'row.price > 100'. With --output - the body goes
to stdout; by default it is saved under the server-provided file name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.client().Download(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return err
			}
			switch output {
			case "-":
				return writeOutput(cmd, "", d.Body)
			case "":
				if d.Filename == "" {
					return writeOutput(cmd, "", d.Body)
				}
				output = d.Filename
			}
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				output = filepath.Join(output, d.Filename)
			}
			return writeOutput(cmd, output, d.Body)
		},
	}
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "json, csv or sql (defaults to the stored format)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only include records matching this expression")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "sort records by this field")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "sort in descending order")
	cmd.Flags().StringVar(&opts.TableName, "table", "", "table name for sql output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write, - for stdout")
	return cmd
}
