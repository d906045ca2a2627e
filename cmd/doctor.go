package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kamusis/kbmatch/internal/config"
	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/logging"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that kbmatch's config, credentials and Hub connection are usable.
Run this command when something seems wrong, or before a long kblookup run.

With --kbfile the KB file is parsed and summarized as well.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var flagDoctorKBFile string

func init() {
	doctorCmd.Flags().StringVarP(&flagDoctorKBFile, "kbfile", "k", "", "KB file to check")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("kbmatch doctor")
	fmt.Println()

	// ── Check 1: kbmatch.yaml is valid ────────────────────────────────────────
	fmt.Println("[ kbmatch.yaml ]")
	cfg, loadErr := config.Load(flagConfigPath)
	if loadErr != nil {
		failD("cannot load config: %v", loadErr)
	} else {
		cfgPath := flagConfigPath
		if cfgPath == "" {
			cfgPath, _ = config.ConfigPath()
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			printWarn("", fmt.Sprintf("%s not found, using defaults (run 'kbmatch init')", cfgPath))
		} else {
			printOK("", fmt.Sprintf("valid YAML: %s", cfgPath))
		}
		if cfg.MaxAttempts <= 0 || cfg.SearchLimit <= 0 || cfg.VersionLimit <= 0 {
			printWarn("", "non-positive limits in config fall back to built-in defaults")
		}
	}
	fmt.Println()

	// ── Check 2: Hub credentials ──────────────────────────────────────────────
	fmt.Println("[ Hub credentials ]")
	credsOK := false
	if loadErr == nil {
		if hub, err := config.ResolveHub(cfg); err != nil {
			failD("%v", err)
		} else {
			printOK("", fmt.Sprintf("server %s, API token set", hub.ServerURL))
			credsOK = true
		}
	} else {
		printWarn("", "skipped (kbmatch.yaml not loaded)")
	}
	fmt.Println()

	// ── Check 3: log file is writable ─────────────────────────────────────────
	fmt.Println("[ Log file ]")
	if loadErr == nil {
		logFile := cfg.LogFile
		if flagLogFile != "" {
			logFile = flagLogFile
		}
		logger, closeLog, err := logging.Open(logFile, cfg.LogLevel)
		if err != nil {
			failD("%v", err)
		} else {
			logger.Debug("doctor probe")
			_ = closeLog()
			printOK("", fmt.Sprintf("writable: %s (level %s)", logFile, cfg.LogLevel))
		}
	} else {
		printWarn("", "skipped (kbmatch.yaml not loaded)")
	}
	fmt.Println()

	// ── Check 4: Hub reachable and token accepted ─────────────────────────────
	fmt.Println("[ Hub connection ]")
	if credsOK {
		client, err := newClient(cfg, logging.Discard())
		if err != nil {
			failD("%v", err)
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			_, err := client.SearchComponents(ctx, "zlib", 1)
			cancel()
			if err != nil {
				failD("KB search failed: %v", err)
			} else {
				printOK("", "authenticated, KB search answered")
			}
		}
	} else {
		printWarn("", "skipped (no credentials)")
	}
	fmt.Println()

	// ── Check 5: KB file ──────────────────────────────────────────────────────
	if flagDoctorKBFile != "" {
		fmt.Println("[ KB file ]")
		if err := checkKBFile(flagDoctorKBFile); err != nil {
			failD("%v", err)
		}
		fmt.Println()
	}

	// ── Summary ──────────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. kbmatch is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

// checkKBFile loads a KB file and prints how many components and versions it answers.
func checkKBFile(path string) error {
	cache, err := kbfile.Open(path, logging.Discard())
	if err != nil {
		return err
	}
	names, versions := cache.Indices()
	negative := 0
	for name := range names {
		if _, o := cache.Candidates(name); o == kbfile.Negative {
			negative++
		}
	}
	noVersion := 0
	for _, u := range versions {
		if u == kbfile.NoVersionMatch {
			noVersion++
		}
	}
	printOK("", fmt.Sprintf("%s: %d component name(s), %d NO MATCH", path, len(names), negative))
	printOK("", fmt.Sprintf("%d version(s), %d NO VERSION MATCH", len(versions), noVersion))
	return nil
}
