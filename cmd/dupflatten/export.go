package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alejandroruanova/dupflatten/internal/infrastructure/export"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Export the store to an XLSX workbook",
	Long: `Write the groups, matches and runs of the store to an XLSX workbook with
one sheet per table. Large tables continue on numbered sheets.

Examples:
  dupflatten export exports/groups.xlsx

  # Also delete exports in the same directory older than a week
  dupflatten export --prune-older-than 168h exports/groups.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prune, _ := cmd.Flags().GetDuration("prune-older-than")

		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		out := args[0]
		store, err := storage.NewLocalStorage(&storage.LocalStorageConfig{
			BasePath: filepath.Dir(out),
		}, appLogger)
		if err != nil {
			return err
		}

		if prune > 0 {
			if _, err := store.CleanupOldFiles(ctx, prune); err != nil {
				return err
			}
		}

		meta, stats, err := export.NewExporter(db.DB, appLogger).ExportTo(ctx, store, filepath.Base(out))
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Exported %d files and %d matches to %s\n", green("✓"), stats.Files, stats.Matches, meta.Path)
		fmt.Printf("  %s\n", gray(fmt.Sprintf("%d sheets, %d bytes, sha256 %s", stats.Sheets, meta.Size, meta.Hash)))
		return nil
	},
}

func init() {
	exportCmd.Flags().Duration("prune-older-than", 0, "remove older files from the export directory first")
	rootCmd.AddCommand(exportCmd)
}
