package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/service"
)

type auditListOptions struct {
	UserID string
	Action string
	Since  time.Duration
	Limit  int
	Offset int
}

type auditPruneOptions struct {
	MaxAge time.Duration
	DryRun bool
	Yes    bool
}

func parseAuditListFlags(args []string, stderr io.Writer) (auditListOptions, error) {
	fs := flag.NewFlagSet("audit-list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := auditListOptions{Limit: 50}
	fs.StringVar(&opts.UserID, "user", "", "Only events for this user")
	fs.StringVar(&opts.Action, "action", "", "Only events with this action (e.g. auth_router.onboarding)")
	fs.DurationVar(&opts.Since, "since", 0, "Only events newer than this age (e.g. 24h)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum events to print (1-500)")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of events to skip")

	if err := fs.Parse(args); err != nil {
		return auditListOptions{}, err
	}
	if opts.Limit < 1 || opts.Limit > 500 {
		return auditListOptions{}, errors.New("--limit must be between 1 and 500")
	}
	if opts.Offset < 0 {
		return auditListOptions{}, errors.New("--offset cannot be negative")
	}
	if opts.Since < 0 {
		return auditListOptions{}, errors.New("--since cannot be negative")
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.Action = strings.TrimSpace(opts.Action)
	return opts, nil
}

// parseAuditPruneFlags defaults -max-age to the configured retention window.
func parseAuditPruneFlags(args []string, stderr io.Writer, defaultMaxAge time.Duration) (auditPruneOptions, error) {
	fs := flag.NewFlagSet("audit-prune", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := auditPruneOptions{MaxAge: defaultMaxAge}
	fs.DurationVar(&opts.MaxAge, "max-age", defaultMaxAge, "Delete events older than this age")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Count matching events without deleting")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return auditPruneOptions{}, err
	}
	if opts.MaxAge < time.Hour {
		return auditPruneOptions{}, errors.New("--max-age must be at least 1h")
	}
	return opts, nil
}

func (o auditListOptions) listOptions(now time.Time) model.AuditListOptions {
	out := model.AuditListOptions{
		UserID: o.UserID,
		Action: o.Action,
		Limit:  o.Limit,
		Offset: o.Offset,
	}
	if o.Since > 0 {
		since := now.Add(-o.Since)
		out.Since = &since
	}
	return out
}

func runAuditList(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditListFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		events, listErr := svcs.AuditStore.List(ctx, opts.listOptions(time.Now().UTC()))
		if listErr != nil {
			return fmt.Errorf("list audit events: %w", listErr)
		}
		return printAuditEvents(cmdCtx.Out, events)
	})
}

func runAuditPrune(cmdCtx *commandContext, args []string) error {
	retention := cmdCtx.Config.Audit.Retention
	opts, err := parseAuditPruneFlags(args, cmdCtx.Err, retention.MaxAge)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
			return countPrunable(ctx, cmdCtx.Out, svcs, opts.MaxAge)
		})
	}

	prompt := fmt.Sprintf("This will permanently delete audit events older than %s.", opts.MaxAge)
	if confirmErr := confirmAction(cmdCtx, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}

	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		pruner, pruneErr := service.NewAuditRetentionService(service.AuditRetentionServiceOptions{
			Store:  svcs.AuditStore,
			Config: retention,
			Logger: cmdCtx.Logger,
		})
		if pruneErr != nil {
			return pruneErr
		}
		deleted, pruneErr := pruner.PruneOlderThan(ctx, opts.MaxAge)
		if pruneErr != nil {
			return pruneErr
		}
		return writef(cmdCtx.Out, "Deleted %d audit events older than %s\n", deleted, opts.MaxAge)
	})
}

// countPrunable pages through events older than maxAge without deleting them.
func countPrunable(ctx context.Context, w io.Writer, svcs *adminServices, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)
	const page = 500
	total := 0
	for offset := 0; ; offset += page {
		events, err := svcs.AuditStore.List(ctx, model.AuditListOptions{Limit: page, Offset: offset})
		if err != nil {
			return fmt.Errorf("list audit events: %w", err)
		}
		for _, ev := range events {
			if ev.OccurredAt.Before(cutoff) {
				total++
			}
		}
		if len(events) < page {
			break
		}
	}
	return writef(w, "%d audit events are older than %s (dry run, nothing deleted)\n", total, maxAge)
}

func printAuditEvents(w io.Writer, events []model.AuditEvent) error {
	if len(events) == 0 {
		return writeln(w, "No audit events found")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "OCCURRED\tUSER\tACTION\tRESOURCE\tORG"); err != nil {
		return err
	}
	for _, ev := range events {
		resource := ev.ResourceType
		if ev.ResourceID != "" {
			resource += ":" + ev.ResourceID
		}
		org := ev.OrganizationID
		if org == "" {
			org = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.OccurredAt.UTC().Format(time.RFC3339),
			ev.UserID,
			ev.Action,
			resource,
			org,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}
