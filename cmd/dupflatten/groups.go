package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alejandroruanova/dupflatten/internal/core/domain"
	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database/repositories"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Page through groups that have an original",
	Long: `List the groups of the store that contain an original file, a page at a
time, with their members and matches.

Examples:
  # First page
  dupflatten groups

  # Page 4, five groups per page
  dupflatten groups --page 4 --per-page 5

  # The page that contains group 120
  dupflatten groups --group 120`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")
		groupID, _ := cmd.Flags().GetInt64("group")

		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repositories.NewGroupRepository(db.DB, appLogger)

		if groupID > 0 {
			page, err = repo.PageOfGroup(ctx, groupID, perPage)
			if err != nil {
				return err
			}
		}

		result, err := repo.Page(ctx, page, perPage)
		if err != nil {
			return err
		}

		printPage(os.Stdout, result)
		return nil
	},
}

func init() {
	groupsCmd.Flags().Int("page", 1, "page number, starting at 1")
	groupsCmd.Flags().Int("per-page", repositories.DefaultGroupsPerPage, "groups per page")
	groupsCmd.Flags().Int64("group", 0, "jump to the page containing this group id")
	rootCmd.AddCommand(groupsCmd)
}

func printPage(w io.Writer, page *repositories.GroupPage) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", cyan(fmt.Sprintf("Page: %d/%d", page.Page, page.TotalPages)))
	if len(page.Groups) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No groups with an original"))
		return
	}

	for _, group := range page.Groups {
		fmt.Fprintln(w)
		printGroup(w, &group)
	}
	fmt.Fprintf(w, "\n%s\n", gray(fmt.Sprintf("%d groups with an original", page.TotalGroups)))
}

func printGroup(w io.Writer, group *repositories.GroupView) {
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", yellow(fmt.Sprintf("Group %d", group.GroupID)))
	for _, f := range group.Files {
		status := gray(f.Status())
		if !f.DuplicateFlag {
			status = green(f.Status())
		}
		fmt.Fprintf(w, "  %3d  %-9s  %s\n", f.FileID, status, f.Filepath)
	}
	for _, m := range group.Matches {
		fmt.Fprintf(w, "       %s\n", gray(formatMatch(m)))
	}
}

func formatMatch(m domain.Match) string {
	return fmt.Sprintf("%d ~ %d  %.2f%%", m.First, m.Second, m.Percentage)
}
