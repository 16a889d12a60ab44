package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/target/waypoint/internal/domain/model"
	"github.com/target/waypoint/internal/service"
)

type userOptions struct {
	UserID  string
	RawJSON bool
	Yes     bool
}

type stepOptions struct {
	UserID string
	Step   string
	Done   bool
}

type resolveOptions struct {
	UserID         string
	RedirectURL    string
	OrganizationID string
	RawJSON        bool
}

func parseUserFlags(name string, args []string, stderr io.Writer) (userOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts userOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print JSON instead of a table")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return userOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return userOptions{}, errors.New("--user is required")
	}
	return opts, nil
}

func parseStepFlags(args []string, stderr io.Writer) (stepOptions, error) {
	fs := flag.NewFlagSet("onboarding-step", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := stepOptions{Done: true}
	fs.StringVar(&opts.UserID, "user", "", "User ID (required)")
	fs.StringVar(&opts.Step, "step", "", "Onboarding step (required)")
	fs.BoolVar(&opts.Done, "done", true, "Mark the step complete (false clears it)")

	if err := fs.Parse(args); err != nil {
		return stepOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return stepOptions{}, errors.New("--user is required")
	}
	if _, ok := model.ParseOnboardingStep(opts.Step); !ok {
		return stepOptions{}, fmt.Errorf("--step must be one of %v", model.OnboardingSteps())
	}
	return opts, nil
}

func parseResolveFlags(args []string, stderr io.Writer) (resolveOptions, error) {
	fs := flag.NewFlagSet("resolve-destination", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts resolveOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID (required)")
	fs.StringVar(&opts.RedirectURL, "redirect", "", "Requested redirect URL")
	fs.StringVar(&opts.OrganizationID, "org", "", "Explicit organization ID")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print JSON instead of a summary")

	if err := fs.Parse(args); err != nil {
		return resolveOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return resolveOptions{}, errors.New("--user is required")
	}
	return opts, nil
}

func withServices(cmdCtx *commandContext, wantRedis bool, fn func(ctx context.Context, svcs *adminServices) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	svcs, err := openServices(cmdCtx, wantRedis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svcs.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", closeErr)
		}
	}()
	return fn(ctx, svcs)
}

func runOnboardingStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("onboarding-status", args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		status, statusErr := svcs.Onboarding.GetOnboardingStatus(ctx, opts.UserID)
		if statusErr != nil {
			return statusErr
		}
		if opts.RawJSON {
			return printJSON(cmdCtx.Out, status)
		}
		return printOnboardingStatus(cmdCtx.Out, opts.UserID, status)
	})
}

func runOnboardingComplete(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("onboarding-complete", args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		if completeErr := svcs.Onboarding.CompleteOnboarding(ctx, opts.UserID); completeErr != nil {
			return completeErr
		}
		cmdCtx.Logger.Info("onboarding marked complete", "user_id", opts.UserID)
		return nil
	})
}

func runOnboardingReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("onboarding-reset", args, cmdCtx.Err)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("This will clear all onboarding progress for user %q.", opts.UserID)
	if confirmErr := confirmAction(cmdCtx, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}
	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		if resetErr := svcs.Onboarding.ResetOnboarding(ctx, opts.UserID); resetErr != nil {
			return resetErr
		}
		cmdCtx.Logger.Info("onboarding reset", "user_id", opts.UserID)
		return nil
	})
}

func runOnboardingStep(cmdCtx *commandContext, args []string) error {
	opts, err := parseStepFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, false, func(ctx context.Context, svcs *adminServices) error {
		if updateErr := svcs.Onboarding.UpdateOnboardingProgress(ctx, opts.UserID, opts.Step, opts.Done); updateErr != nil {
			return updateErr
		}
		cmdCtx.Logger.Info("onboarding step updated", "user_id", opts.UserID, "step", opts.Step, "completed", opts.Done)
		return nil
	})
}

func runResolveDestination(cmdCtx *commandContext, args []string) error {
	opts, err := parseResolveFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, true, func(ctx context.Context, svcs *adminServices) error {
		dest := svcs.Router.GetPostAuthDestination(ctx, service.DestinationRequest{
			User:           &model.User{ID: opts.UserID},
			RedirectURL:    opts.RedirectURL,
			OrganizationID: opts.OrganizationID,
		})
		if opts.RawJSON {
			return printJSON(cmdCtx.Out, dest)
		}
		return printDestination(cmdCtx.Out, dest)
	})
}

func printOnboardingStatus(w io.Writer, userID string, status model.OnboardingStatus) error {
	done := make(map[model.OnboardingStep]bool, len(status.CompletedSteps))
	for _, step := range status.CompletedSteps {
		done[step] = true
	}

	state := "in progress"
	if status.Completed {
		state = "complete"
	}
	if err := writef(w, "User %s: onboarding %s (%d%%)\n\n", userID, state, status.Progress); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "STEP\tPATH\tDONE"); err != nil {
		return err
	}
	for _, step := range status.AvailableSteps {
		marker := ""
		switch {
		case done[step]:
			marker = "yes"
		case step == status.NextStep && !status.Completed:
			marker = "next"
		}
		if err := writef(tw, "%s\t%s\t%s\n", step, step.Path(), marker); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printDestination(w io.Writer, dest model.AuthDestination) error {
	if err := writef(w, "URL:    %s\nReason: %s\n", dest.URL, dest.Reason); err != nil {
		return err
	}
	if dest.OrganizationContext != "" {
		if err := writef(w, "Org:    %s\n", dest.OrganizationContext); err != nil {
			return err
		}
	}
	if dest.RequiresOnboarding != nil && *dest.RequiresOnboarding {
		if err := writeln(w, "Onboarding required"); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
