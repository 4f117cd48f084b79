package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/liamcoop/cstt/testcase"
	"github.com/spf13/cobra"
)

func (a *app) testCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testcases",
		Short: "List and create the test cases test data links to",
	}

	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's test cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := a.client().ListTestCases(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tSTATUS\tTITLE")
			for _, tc := range cases {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tc.ID, tc.Priority, tc.Status, tc.Title)
			}
			return w.Flush()
		},
	}

	var tc testcase.TestCase
	var priority, status string
	create := &cobra.Command{
		Use:   "create <project-id> <title>",
		Short: "Create a test case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc.Title = args[1]
			tc.Priority = testcase.Priority(priority)
			tc.Status = testcase.Status(status)
			created, err := a.client().CreateTestCase(cmd.Context(), args[0], tc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	create.Flags().StringVar(&tc.ID, "id", "", "test case key such as LOGIN-1, a UUID when empty")
	create.Flags().StringVarP(&tc.Description, "description", "d", "", "test case description")
	create.Flags().StringVarP(&priority, "priority", "p", "", "Low, Medium, High or Critical (default Medium)")
	create.Flags().StringVarP(&status, "status", "s", "", "Draft, Pending, Passed or Failed (default Draft)")

	cmd.AddCommand(list, create)
	return cmd
}
