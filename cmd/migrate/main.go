package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/liamcoop/churn/artifact"
	"github.com/liamcoop/churn/internal/logger"
	"github.com/liamcoop/churn/model"
)

const usage = "up, down, version, force <version>, seed <artifact file>"

type options struct {
	databaseURL    string
	migrationsPath string
	command        string
	modelName      string
	args           []string
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.databaseURL, "database", "", "Database URL (defaults to MODEL_DATABASE_URL)")
	fs.StringVar(&opts.migrationsPath, "path", "migrations", "Path to migrations directory")
	fs.StringVar(&opts.command, "command", "up", "Migration command: "+usage)
	fs.StringVar(&opts.modelName, "name", "", "Artifact name for seed (defaults to MODEL_NAME, then the artifact's own name)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("MODEL_DATABASE_URL")
	}
	if opts.databaseURL == "" {
		return nil, errors.New("database URL is required: use -database or MODEL_DATABASE_URL")
	}
	if opts.modelName == "" {
		opts.modelName = os.Getenv("MODEL_NAME")
	}

	switch opts.command {
	case "up", "down", "version":
	case "force":
		if len(opts.args) < 1 {
			return nil, errors.New("force requires a version number: -command force <version>")
		}
		if _, err := strconv.Atoi(opts.args[0]); err != nil {
			return nil, fmt.Errorf("invalid version number %q: %w", opts.args[0], err)
		}
	case "seed":
		if len(opts.args) < 1 {
			return nil, errors.New("seed requires an artifact file: -command seed <path>")
		}
	default:
		return nil, fmt.Errorf("unknown command %q (use: %s)", opts.command, usage)
	}

	return opts, nil
}

func runMigration(opts *options) error {
	m, err := migrate.New("file://"+opts.migrationsPath, opts.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	switch opts.command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations applied")

	case "down":
		err = m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		logger.Info("migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		version, _ := strconv.Atoi(opts.args[0])
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("forced version", "version", version)
	}

	return nil
}

// seed validates an artifact file and stores it so the server can load it
// from the database
func seed(ctx context.Context, opts *options) error {
	src := artifact.NewFileSource(opts.args[0])
	blob, err := src.Load(ctx)
	if err != nil {
		return err
	}

	a, err := model.Decode(blob)
	if err != nil {
		return err
	}
	if _, err := model.New(a); err != nil {
		return fmt.Errorf("refusing to store invalid artifact: %w", err)
	}

	blob.Name = opts.modelName
	if blob.Name == "" {
		blob.Name = a.Name
	}

	db, err := artifact.OpenPostgres(ctx, opts.databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := artifact.Store(ctx, db, blob); err != nil {
		return err
	}

	logger.Info("artifact stored", "name", blob.Name, "version", a.Version, "source", src.Describe())
	return nil
}

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Fatal("invalid arguments", "error", err)
	}

	logger.Info("connecting to database", "migrations_path", opts.migrationsPath, "command", opts.command)

	if opts.command == "seed" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = seed(ctx, opts)
	} else {
		err = runMigration(opts)
	}
	if err != nil {
		logger.Fatal("migrate failed", "command", opts.command, "error", err)
	}
}
