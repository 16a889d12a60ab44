package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/bootstrap"
	"github.com/target/waypoint/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	Err    io.Writer
	In     io.Reader
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		Err:    os.Stderr,
		In:     os.Stdin,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "List embedded migrations and whether each has been applied",
			run:         runMigrationStatus,
		},
		"membership-add": {
			name:        "membership-add",
			description: "Grant a user an active membership in an organization",
			run:         runMembershipAdd,
		},
		"membership-deactivate": {
			name:        "membership-deactivate",
			description: "Revoke a user's active membership in an organization",
			run:         runMembershipDeactivate,
		},
		"onboarding-status": {
			name:        "onboarding-status",
			description: "Show a user's onboarding progress",
			run:         runOnboardingStatus,
		},
		"onboarding-complete": {
			name:        "onboarding-complete",
			description: "Mark every onboarding step complete for a user",
			run:         runOnboardingComplete,
		},
		"onboarding-step": {
			name:        "onboarding-step",
			description: "Mark a single onboarding step complete or incomplete",
			run:         runOnboardingStep,
		},
		"onboarding-reset": {
			name:        "onboarding-reset",
			description: "Clear a user's onboarding progress",
			run:         runOnboardingReset,
		},
		"resolve-destination": {
			name:        "resolve-destination",
			description: "Show where a user would land after signing in",
			run:         runResolveDestination,
		},
		"audit-list": {
			name:        "audit-list",
			description: "List recent routing and onboarding audit events",
			run:         runAuditList,
		},
		"audit-prune": {
			name:        "audit-prune",
			description: "Delete audit events older than the retention window",
			run:         runAuditPrune,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: waypoint-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runMigrationStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	migrations, err := migrate.Status(ctx, db)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return printMigrationStatus(cmdCtx.Out, migrations)
}

func printMigrationStatus(w io.Writer, migrations []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "VERSION\tFILE\tAPPLIED"); err != nil {
		return err
	}
	pending := 0
	for _, m := range migrations {
		applied := "pending"
		if m.Applied() {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		} else {
			pending++
		}
		if err := writef(tw, "%s\t%s\t%s\n", m.Version, m.File, applied); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush migration table: %w", err)
	}
	return writef(w, "\n%d migrations, %d pending\n", len(migrations), pending)
}

// confirmAction prompts on cmdCtx.In unless yes is set.
func confirmAction(cmdCtx *commandContext, yes bool, prompt string) error {
	if yes {
		return nil
	}
	if err := writef(cmdCtx.Out, "%s\nContinue? [y/N]: ", prompt); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	reader := bufio.NewReader(cmdCtx.In)
	resp, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string, stderr io.Writer) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
