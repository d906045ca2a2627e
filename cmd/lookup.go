package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
	"github.com/kamusis/kbmatch/internal/reconcile"
	"github.com/kamusis/kbmatch/internal/resolve"
)

// lockTimeout bounds the wait for another kbmatch run writing the same KB file.
const lockTimeout = 10 * time.Second

var (
	flagLookupManifest string
	flagLookupKBFile   string
	flagLookupOutput   string
	flagLookupStrip    []string
	flagLookupAppend   bool
)

var lookupCmd = &cobra.Command{
	Use:   "kblookup",
	Short: "Find KB components for every manifest entry and record them in a KB file",
	Long: `Search the Hub KB for each component of the manifest and write one
line per resolved component to the output KB file.

Entries already answered by the input KB file (-k) are not searched again,
including components recorded as NO MATCH. With -a the input KB file is
copied into the output before processing.

Examples:
  kbmatch kblookup -c manifest.txt
  kbmatch kblookup -c manifest.txt -k kblookup.out -o kblookup.out
  kbmatch kblookup -c manifest.txt -k old.kb -o new.kb -a -r -dev -r -native`,
	Args: cobra.NoArgs,
	RunE: runLookup,
}

func init() {
	f := lookupCmd.Flags()
	f.StringVarP(&flagLookupManifest, "manifest", "c", "", "Input component list (manifest) file")
	f.StringVarP(&flagLookupKBFile, "kbfile", "k", "", "Input KB file of previously matched components")
	f.StringVarP(&flagLookupOutput, "output", "o", "kblookup.out", "Output KB file")
	f.StringArrayVarP(&flagLookupStrip, "strip", "r", nil, "String to remove from component names before searching (repeatable)")
	f.BoolVarP(&flagLookupAppend, "append", "a", false, "Copy the input KB file into the output KB file first")
	_ = lookupCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, _ []string) error {
	if flagLookupAppend && flagLookupKBFile == "" {
		return fmt.Errorf("-a requires an input KB file (-k)")
	}

	s, err := openSession("kblookup")
	if err != nil {
		return err
	}
	defer s.Close()

	unlock, err := kbfile.Lock(flagLookupOutput, lockTimeout)
	if errors.Is(err, kbfile.ErrLocked) {
		return fmt.Errorf("KB file %s is in use by another kbmatch run", flagLookupOutput)
	}
	if err != nil {
		return err
	}
	defer unlock()

	cache := kbfile.New(flagLookupOutput, s.logger)
	if flagLookupKBFile != "" {
		if flagLookupAppend {
			err = cache.Merge(flagLookupKBFile)
		} else {
			err = cache.Load(flagLookupKBFile)
		}
		if err != nil {
			s.logger.Error("cannot load input KB file", "file", flagLookupKBFile, "err", err)
			return err
		}
	}

	entries, err := manifest.Read(flagLookupManifest)
	if err != nil {
		s.logger.Error("cannot read manifest", "file", flagLookupManifest, "err", err)
		return err
	}

	strip := append(append([]string(nil), s.cfg.StripPatterns...), flagLookupStrip...)
	res := resolve.New(s.client, resolve.Options{
		StripPatterns: strip,
		SearchLimit:   s.cfg.SearchLimit,
		VersionLimit:  s.cfg.VersionLimit,
	}, s.logger)
	r := reconcile.New(s.client, res, cache, s.logger)
	r.MaxAttempts = s.cfg.MaxAttempts
	r.Report = printEvent

	printSection("KB Lookup")
	printInfo("", fmt.Sprintf("Output KB file: %s", flagLookupOutput))
	printInfo("", fmt.Sprintf("Processing %d component(s) from %s", len(entries), flagLookupManifest))
	s.logger.Info("kblookup started", "manifest", flagLookupManifest, "entries", len(entries),
		"kbfile", flagLookupKBFile, "output", flagLookupOutput, "append", flagLookupAppend)

	sum, err := r.Lookup(cmd.Context(), entries)
	printLookupSummary(sum)
	s.logger.Info("kblookup finished", "matched", sum.Matched, "cached", sum.Cached,
		"negative", sum.Negative, "nomatch", sum.NoMatch, "attempts", sum.Attempts, "err", err)

	if errors.Is(err, reconcile.ErrAttemptLimit) {
		return fmt.Errorf("%d resolution attempts made, %d component(s) left: rerun with -k %s -o %s to continue",
			sum.Attempts, sum.Remaining, flagLookupOutput, flagLookupOutput)
	}
	return err
}

func printLookupSummary(sum *reconcile.LookupSummary) {
	printSection("Summary")
	printOK("", fmt.Sprintf("%d matched", sum.Matched))
	printSkip("", fmt.Sprintf("%d answered by the input KB file", sum.Cached+sum.Negative))
	printMiss("", fmt.Sprintf("%d without a KB match", sum.NoMatch))
	printInfo("", fmt.Sprintf("%d resolution attempt(s)", sum.Attempts))
}
