package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/docket/internal/agenda"
	"github.com/dyluth/docket/internal/printer"
)

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Import items and groups from a YAML manifest",
	Long: `Import review items and groups from a YAML manifest.

New items are created as unreviewed unless the manifest gives a status.
Existing items keep their status and votes; only title, speaker and the
withdrawn flag are refreshed. Group membership is moved to match the file.

Example manifest:
  items:
    - id: 1
      title: Generics in practice
      speaker: Ann
  groups:
    - code: lang
      label: Language
      items: [1]`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	manifest, err := agenda.ReadManifest(args[0])
	if err != nil {
		return printer.ErrorWithContext("could not read manifest", err.Error(),
			map[string]string{"File": args[0]}, nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	printer.Step("Loading %d items and %d groups...\n", len(manifest.Items), len(manifest.Groups))
	summary, err := agenda.Apply(ctx, store, manifest)
	if err != nil {
		return printer.Error("load failed", err.Error(), []string{"Fix the manifest and run load again; it is safe to repeat"})
	}
	printer.Success("Created %d, updated %d items; %d groups, %d items moved\n",
		summary.Created, summary.Updated, summary.Groups, summary.Moved)
	return nil
}
