package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	northward "github.com/dparlevliet/northward"
)

func main() {
	Execute()
}

var (
	engine              string
	dynamodbEndpointURL string
	tableName           string
	directory           string
	file                string
	dryRun              bool
	migrateDependencies bool
)

func init() {
	viper.SetEnvPrefix("NORTHWARD")

	northwardCmd.Flags().StringVar(&engine, "engine", "dynamodb", "storage engine (dynamodb or memory)")
	viper.BindEnv("ENGINE")
	if e := viper.GetString("ENGINE"); e != "" {
		engine = e
	}

	northwardCmd.Flags().StringVar(&dynamodbEndpointURL, "dynamodb-endpoint-url", "", "DynamoDB endpoint URL override")
	viper.BindEnv("DYNAMODB_ENDPOINT_URL")
	if e := viper.GetString("DYNAMODB_ENDPOINT_URL"); e != "" {
		dynamodbEndpointURL = e
	}

	northwardCmd.Flags().StringVar(&tableName, "table", "migrations", "table recording applied migrations")
	viper.BindEnv("TABLE")
	if t := viper.GetString("TABLE"); t != "" {
		tableName = t
	}

	northwardCmd.Flags().StringVar(&directory, "directory", "./migrations", "migration directory")
	viper.BindEnv("DIRECTORY")
	if d := viper.GetString("DIRECTORY"); d != "" {
		directory = d
	}

	northwardCmd.Flags().StringVar(&file, "file", "", "single migration file to run, takes precedence over --directory")
	northwardCmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and report without executing anything")
	northwardCmd.Flags().BoolVar(&migrateDependencies, "migrate-dependencies", false, "automatically migrate unapplied dependencies")
}

var northwardCmd = &cobra.Command{
	Use:           "northward [flags] command [n]",
	Short:         "Dependency-aware migration runner",
	Long:          "Applies ordered, idempotent migration scripts, tracking applied state in DynamoDB or in memory. Commands: up, down, rollback, status, make.",
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := northwardCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	command := args[0]
	n := 0
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid number of migrations to rollback: %q", args[1])
		}
		n = parsed
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var storage northward.StorageEngine
	switch engine {
	case "dynamodb":
		client, err := northward.NewDynamoDBClient(ctx, dynamodbEndpointURL)
		if err != nil {
			return err
		}
		storage = northward.NewDynamoDBStorageEngine(client, tableName).WithLogger(logger)
	case "memory":
		storage = northward.NewMemoryStorageEngine()
	default:
		return fmt.Errorf("invalid engine: %q", engine)
	}

	if (command == "rollback" || command == "down") && n < 1 {
		return fmt.Errorf("invalid number of migrations to rollback: %d", n)
	}

	absDir, err := filepath.Abs(directory)
	if err != nil {
		return fmt.Errorf("resolving directory %s: %w", directory, err)
	}

	migrator := northward.NewMigrator(absDir, storage).
		WithLogger(logger).
		WithDryRun(dryRun).
		WithMigrateDependencies(migrateDependencies)

	switch command {
	case "up":
		if file != "" {
			return migrator.MigrateScript(ctx, file)
		}
		return migrator.Migrate(ctx)
	case "down", "rollback":
		return migrator.Rollback(ctx, n)
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			if s.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has been run\n", s.Filename)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has not been run\n", s.Filename)
			}
		}
		return nil
	case "make":
		path, err := migrator.MakeEmpty()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	default:
		return fmt.Errorf("invalid command: %q", command)
	}
}
