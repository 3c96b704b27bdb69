package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/licensing-backend/pkg/config"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/migrate"
)

const usage = "migrate -cmd up|down|to|status|version|create|validate [-dir path] [-name title] [-version YYYYMMDDHHMMSS]"

func main() {
	cmd := flag.String("cmd", "up", "command to run")
	dir := flag.String("dir", "", "migrations directory; empty uses the copy embedded in this binary")
	name := flag.String("name", "", "title for -cmd create")
	target := flag.String("version", "", "target version for -cmd to")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	switch *cmd {
	case "create":
		createDir := *dir
		if createDir == "" {
			createDir = migrate.DefaultDir
		}
		path, err := migrate.Create(createDir, *name, time.Now())
		exitOn(ctx, logg, "create migration", err)
		fmt.Println(path)
		return
	case "validate":
		source, err := migrate.Source(*dir)
		exitOn(ctx, logg, "open migrations", err)
		exitOn(ctx, logg, "validate migrations", migrate.Validate(source))
		logg.Info(ctx, "migrate.validate_ok")
		return
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": *dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.SQL()
	exitOn(ctx, logg, "extract sql.DB", err)

	source, err := migrate.Source(*dir)
	exitOn(ctx, logg, "open migrations", err)
	runner, err := migrate.NewRunner(sqlDB, source)
	exitOn(ctx, logg, "build runner", err)

	var moved []migrate.Step
	switch *cmd {
	case "up":
		moved, err = runner.Up(ctx)
	case "down":
		moved, err = runner.Down(ctx)
	case "to":
		version, parseErr := strconv.ParseInt(*target, 10, 64)
		if parseErr != nil {
			exitOn(ctx, logg, "parse -version", fmt.Errorf("%q is not a migration version: %w", *target, parseErr))
		}
		moved, err = runner.To(ctx, version)
	case "status":
		moved, err = runner.Pending(ctx)
	case "version":
		var current int64
		current, err = runner.Version(ctx)
		if err == nil {
			fmt.Println(current)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	exitOn(ctx, logg, *cmd, err)

	for _, step := range moved {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   step.Version,
			"file":      step.Path,
			"direction": step.Direction,
			"empty":     step.Empty,
		}), "migrate.step")
	}
	logg.Info(logg.WithField(ctx, "steps", len(moved)), "migrate.done")
}

func exitOn(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "step", what), "migrate.failed", err)
	os.Exit(1)
}
