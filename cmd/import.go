package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kamusis/kbmatch/internal/kbfile"
	"github.com/kamusis/kbmatch/internal/manifest"
	"github.com/kamusis/kbmatch/internal/reconcile"
	"github.com/kamusis/kbmatch/internal/resolve"
)

var (
	flagImportManifest string
	flagImportKBFile   string
	flagImportProject  string
	flagImportVersion  string
	flagImportDelete   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Add the KB file matches of a manifest to a project version BOM",
	Long: `Register every manifest component that the KB file resolves as a manual
component of the given project version. The project and version are created
when missing. Components already in the BOM are left alone.

With -d the manual components already in the BOM that the manifest does not
produce are listed. They are not deleted.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&flagImportManifest, "manifest", "c", "", "Input component list (manifest) file")
	f.StringVarP(&flagImportKBFile, "kbfile", "k", "", "KB file produced by kblookup")
	f.StringVarP(&flagImportProject, "project", "p", "", "Hub project name")
	f.StringVarP(&flagImportVersion, "version", "v", "", "Hub project version name")
	f.BoolVarP(&flagImportDelete, "delete", "d", false, "List manual BOM components the manifest does not produce")
	for _, name := range []string{"manifest", "kbfile", "project", "version"} {
		_ = importCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	s, err := openSession("import")
	if err != nil {
		return err
	}
	defer s.Close()

	cache, err := kbfile.Open(flagImportKBFile, s.logger)
	if err != nil {
		s.logger.Error("cannot load KB file", "file", flagImportKBFile, "err", err)
		return err
	}
	entries, err := manifest.Read(flagImportManifest)
	if err != nil {
		s.logger.Error("cannot read manifest", "file", flagImportManifest, "err", err)
		return err
	}

	res := resolve.New(s.client, resolve.Options{
		SearchLimit:  s.cfg.SearchLimit,
		VersionLimit: s.cfg.VersionLimit,
	}, s.logger)
	r := reconcile.New(s.client, res, cache, s.logger)
	if s.cfg.BOMLimit > 0 {
		r.BOMLimit = s.cfg.BOMLimit
	}
	r.Report = printEvent

	printSection("Import")
	printInfo("", fmt.Sprintf("Project version: %s/%s", flagImportProject, flagImportVersion))
	printInfo("", fmt.Sprintf("Processing %d component(s) from %s", len(entries), flagImportManifest))
	s.logger.Info("import started", "manifest", flagImportManifest, "kbfile", flagImportKBFile,
		"project", flagImportProject, "version", flagImportVersion, "entries", len(entries))

	sum, err := r.Import(cmd.Context(), entries, reconcile.ImportOptions{
		Project:       flagImportProject,
		Version:       flagImportVersion,
		SourceFile:    flagImportManifest,
		CollectManual: flagImportDelete,
	})
	if err != nil {
		printErr("", fmt.Sprintf("Cannot use version %s/%s: %v", flagImportProject, flagImportVersion, err))
		s.logger.Error("import aborted", "err", err)
		return err
	}
	printImportSummary(sum, flagImportDelete)
	s.logger.Info("import finished", "added", sum.Added, "present", sum.Present,
		"unmatched", sum.Unmatched, "failed", sum.Failed)
	if sum.Failed > 0 {
		return fmt.Errorf("%d component(s) could not be added to the BOM; see the log for details", sum.Failed)
	}
	return nil
}

func printImportSummary(sum *reconcile.ImportSummary, collectManual bool) {
	printSection("Summary")
	if sum.Created {
		printInfo("", fmt.Sprintf("Project version created (%d existing component(s))", sum.Existing))
	} else {
		printInfo("", fmt.Sprintf("%d existing component(s) in project version", sum.Existing))
	}
	printOK("", fmt.Sprintf("%d added", sum.Added))
	printSkip("", fmt.Sprintf("%d already in BOM", sum.Present))
	printMiss("", fmt.Sprintf("%d without a KB version", sum.Unmatched))
	if sum.Failed > 0 {
		printErr("", fmt.Sprintf("%d failed", sum.Failed))
	}
	if !collectManual {
		return
	}
	if len(sum.UnusedManual) == 0 {
		printOK("", "No unused manual components")
		return
	}
	printBullet(fmt.Sprintf("Unused manual components (%d), not deleted: deletion is not supported", len(sum.UnusedManual)))
	for _, c := range sum.UnusedManual {
		printWarn("", c.ComponentVersionURL)
	}
}
