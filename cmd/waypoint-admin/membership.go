package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/target/waypoint/internal/domain/model"
)

type membershipOptions struct {
	UserID         string
	OrganizationID string
	Role           string
	Yes            bool
}

func parseMembershipFlags(name string, args []string, stderr io.Writer) (membershipOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts membershipOptions
	fs.StringVar(&opts.UserID, "user", "", "User ID (required)")
	fs.StringVar(&opts.OrganizationID, "org", "", "Organization ID (required)")
	fs.StringVar(&opts.Role, "role", model.RoleMember, "Role name (membership-add only)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return membershipOptions{}, err
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	opts.OrganizationID = strings.TrimSpace(opts.OrganizationID)
	opts.Role = strings.ToLower(strings.TrimSpace(opts.Role))
	if opts.UserID == "" {
		return membershipOptions{}, errors.New("--user is required")
	}
	if opts.OrganizationID == "" {
		return membershipOptions{}, errors.New("--org is required")
	}
	return opts, nil
}

// Both membership commands connect Redis so the cached membership list for
// the user is dropped after the write.
func runMembershipAdd(cmdCtx *commandContext, args []string) error {
	opts, err := parseMembershipFlags("membership-add", args, cmdCtx.Err)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, true, func(ctx context.Context, svcs *adminServices) error {
		m, addErr := svcs.Memberships.AddMembership(ctx, model.MembershipGrant{
			UserID:         opts.UserID,
			OrganizationID: opts.OrganizationID,
			Role:           opts.Role,
		})
		if addErr != nil {
			return addErr
		}
		cmdCtx.Logger.Info("membership added",
			"user_id", m.UserID, "organization_id", m.OrganizationID, "role", m.Role)
		return nil
	})
}

func runMembershipDeactivate(cmdCtx *commandContext, args []string) error {
	opts, err := parseMembershipFlags("membership-deactivate", args, cmdCtx.Err)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("This will revoke user %q's access to organization %q.", opts.UserID, opts.OrganizationID)
	if confirmErr := confirmAction(cmdCtx, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}
	return withServices(cmdCtx, true, func(ctx context.Context, svcs *adminServices) error {
		changed, deactivateErr := svcs.Memberships.DeactivateMembership(ctx, opts.UserID, opts.OrganizationID)
		if deactivateErr != nil {
			return deactivateErr
		}
		if !changed {
			return writeln(cmdCtx.Out, "No active membership found")
		}
		cmdCtx.Logger.Info("membership deactivated",
			"user_id", opts.UserID, "organization_id", opts.OrganizationID)
		return nil
	})
}
