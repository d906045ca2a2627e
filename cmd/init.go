package cmd

import (
	"fmt"
	"os"

	"github.com/kamusis/kbmatch/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default kbmatch config and a .env template",
	Long: `Initialize ~/.kbmatch/.

Writes kbmatch.yaml with default settings and a .env template holding
KBMATCH_SERVER_URL and KBMATCH_API_TOKEN. Existing files are kept.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var flagInitServerURL string

func init() {
	initCmd.Flags().StringVar(&flagInitServerURL, "server-url", "", "Hub server URL to store in kbmatch.yaml")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.kbmatch directory ───────────────────────────────────────
	dir, err := config.KbmatchDir()
	if err != nil {
		return err
	}
	cfgPath := flagConfigPath
	if cfgPath == "" {
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}

	// ── 2. Create ~/.kbmatch/ if it doesn't exist ─────────────────────────────
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	printOK("", fmt.Sprintf("kbmatch directory ready: %s", dir))

	// ── 3. Write kbmatch.yaml if missing ──────────────────────────────────────
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		cfg.ServerURL = flagInitServerURL
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 4. Write the .env template if missing ─────────────────────────────────
	envPath, err := config.DotEnvPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(envPath); err == nil {
		printSkip("", fmt.Sprintf(".env already exists: %s", envPath))
	} else {
		if err := config.EnsureDotEnvTemplate(); err != nil {
			return err
		}
		printOK("", fmt.Sprintf(".env template written: %s (set %s)", envPath, config.EnvAPIToken))
	}

	fmt.Println("\n✓  kbmatch init complete. Fill in ~/.kbmatch/.env, then run 'kbmatch kblookup -c <manifest>'.")
	return nil
}
