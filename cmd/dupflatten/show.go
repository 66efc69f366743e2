package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database/repositories"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

var showCmd = &cobra.Command{
	Use:   "show [group_id]",
	Short: "Show one group, or summarize the store",
	Long: `Show the members and matches of one group. Without a group id, print
row counts of the store and its most recent runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 0 {
			return showSummary(cmd, db.DB)
		}

		groupID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || groupID < 1 {
			return apperrors.Configuration(fmt.Sprintf("invalid group id %q", args[0]))
		}

		group, err := repositories.NewGroupRepository(db.DB, appLogger).GetGroup(ctx, groupID)
		if err != nil {
			return err
		}

		printGroup(os.Stdout, group)
		return nil
	},
}

func init() {
	showCmd.Flags().Int("runs", 5, "number of recent runs listed in the summary")
	rootCmd.AddCommand(showCmd)
}

func showSummary(cmd *cobra.Command, db *gorm.DB) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("runs")

	summary, err := repositories.NewGroupRepository(db, appLogger).Summary(ctx)
	if err != nil {
		return err
	}
	runs, err := repositories.NewRunRepository(db, appLogger).List(ctx, limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s\n", cyan("=== Store "+cfg.Database.Target()+" ==="))
	fmt.Printf("  Files:            %d\n", summary.Files)
	fmt.Printf("  Matches:          %d\n", summary.Matches)
	fmt.Printf("  Groups:           %d\n", summary.Groups)
	fmt.Printf("  With an original: %d\n", summary.OriginalGroups)
	fmt.Printf("  Runs:             %d\n", summary.Runs)

	if len(runs) == 0 {
		return nil
	}
	fmt.Println()
	for _, run := range runs {
		fmt.Printf("  %s  %6d groups  %s\n",
			run.CompletedAt.Local().Format("2006-01-02 15:04:05"), run.GroupCount, run.SourcePath)
		fmt.Printf("  %s\n", gray(run.RunID.String()+"  "+run.SourceHash))
	}
	return nil
}
