package main

import (
	"os"

	"github.com/OFFIS-RIT/kiwi-research/internal/server"
	"github.com/OFFIS-RIT/kiwi-research/internal/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger/console"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnv("LOG_FORMAT") == "json",
	})
	logger.Init(consoleLogger)

	root := &cobra.Command{
		Use:          "kiwi-research",
		Short:        "Research assistant that grows a project knowledge graph",
		SilenceUsage: true,
	}
	root.AddCommand(serveCMD(), migrateCMD())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			server.Init()
		},
	}
}

func migrateCMD() *cobra.Command {
	var migDir string
	var steps int

	migrate := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Migrate(migDir, util.GetEnv("DATABASE_URL"), args[0], steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", util.GetEnvString("MIGRATIONS_PATH", "file://migrations"), "migrations source")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
