package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagLogFile    string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "kbmatch",
	Short:        "kbmatch: match build manifest components to Hub KB components",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `kbmatch resolves the free-text component names of a build manifest to
components and versions in a Hub knowledge base (KB).

  kbmatch kblookup   search the KB and record matches in a KB file
  kbmatch import     add the KB file matches to a project version BOM

The KB file is a plain-text cache: rerun kblookup with -k to continue
where a previous run stopped.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "Config file (default ~/.kbmatch/kbmatch.yaml)")
	pf.StringVar(&flagLogFile, "log-file", "", "Log file (overrides log_file in the config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
