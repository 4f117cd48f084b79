// Command cstt is the command line client for the test data service. It
// formats datasets locally and talks to the API for everything stored.
package main

import (
	"fmt"
	"os"

	"github.com/liamcoop/cstt/client"
	"github.com/liamcoop/cstt/internal/config"
	"github.com/liamcoop/cstt/internal/logger"
	"github.com/spf13/cobra"
)

type app struct {
	apiURL    string
	tokenFile string

	// api is built on first use from apiURL and tokenFile
	api *client.Client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cstt:", err)
		os.Exit(1)
	}

	if err := newApp(cfg).rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cstt:", err)
		os.Exit(1)
	}
}

func newApp(cfg config.Config) *app {
	return &app{
		apiURL:    cfg.APIURL,
		tokenFile: cfg.TokenFile,
	}
}

func (a *app) client() *client.Client {
	if a.api == nil {
		a.api = client.New(a.apiURL, client.NewFileTokenStore(a.tokenFile))
	}
	return a.api
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cstt",
		Short:         "Generate, format and download test data",
		SilenceUsage:  true,
		SilenceErrors: true,
		// keep stdout for command output
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts := logger.OptionsFromEnv()
			opts.Output = cmd.ErrOrStderr()
			if err := logger.Configure(opts); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "cstt:", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", a.apiURL, "test data API base URL (env CSTT_API_URL)")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", a.tokenFile, "where the API token is stored (env CSTT_TOKEN_FILE)")

	root.AddCommand(
		a.formatCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.projectsCmd(),
		a.testCasesCmd(),
		a.testDataCmd(),
		a.generateCmd(),
		a.downloadCmd(),
	)
	return root
}
