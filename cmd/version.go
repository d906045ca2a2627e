package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X github.com/kamusis/kbmatch/cmd.version=...".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show kbmatch version and build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var flagVersionShort bool

func init() {
	versionCmd.Flags().BoolVar(&flagVersionShort, "short", false, "Print the version number only")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	if flagVersionShort {
		fmt.Println(version)
		return nil
	}
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", emptyAsNA(commit))
	fmt.Printf("Build Date: %s\n", emptyAsNA(buildDate))
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("User-Agent: %s\n", userAgent())
	return nil
}

// userAgent identifies kbmatch to the Hub.
func userAgent() string {
	ua := "kbmatch/" + version
	if commit != "" {
		ua += " (" + commit + ")"
	}
	return ua
}

func emptyAsNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
