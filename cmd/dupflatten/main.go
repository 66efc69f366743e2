package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alejandroruanova/dupflatten/internal/infrastructure/database"
	"github.com/alejandroruanova/dupflatten/internal/pkg/config"
	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
	"github.com/alejandroruanova/dupflatten/internal/pkg/logger"
)

var (
	cfg       *config.Config
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dupflatten",
	Short: "Flatten duplicate-file reports into a relational store",
	Long: `dupflatten reads a duplicate groups report (XML, optionally gzipped) and
writes its groups, member files and similarity matches into a SQLite or
PostgreSQL store that can be paged and queried.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadWith(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		appLogger = logger.Initialize(cfg.Environment, cfg.LogLevel)
		cfg.LogConfig(appLogger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("db", "", "target store path for SQLite (default xml_data.db)")
	flags.String("driver", "", "store driver: sqlite or postgres")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	viper.BindPFlag("DB_PATH", flags.Lookup("db"))
	viper.BindPFlag("DB_DRIVER", flags.Lookup("driver"))
	viper.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))
}

// openStore connects to the configured store
func openStore(ctx context.Context) (*database.DB, error) {
	return database.Open(ctx, cfg.Database, appLogger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(apperrors.ExitCodeOf(err))
	}
}
