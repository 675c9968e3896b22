package cli

import (
	"flag"
	"fmt"
)

func newGrantsCommand() *Command {
	cmd := &Command{
		Name:        "grants",
		Description: "List access grants",
		Flags:       flag.NewFlagSet("grants", flag.ExitOnError),
		Run:         runGrants,
	}

	cmd.Flags.String("environment", "", "Filter by environment (Dev, QA, Staging, Prod)")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runGrants(args []string) error {
	cmd := newGrantsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	environment := cmd.Flags.Lookup("environment").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	client := NewClient(serverURL(server))
	list, err := client.ListGrants(environment)
	if err != nil {
		return fmt.Errorf("failed to list grants: %w", err)
	}

	if list.Count == 0 {
		fmt.Println("No access grants found")
		return nil
	}

	fmt.Printf("%-30s %-10s %-10s %s\n", "GROUP", "ENV", "TICKET", "CREATED")
	for _, g := range list.Grants {
		fmt.Printf("%-30s %-10s %-10s %s\n", g.GroupName, g.Environment, g.TicketID, g.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func newValidateCommand() *Command {
	cmd := &Command{
		Name:        "validate",
		Description: "Re-validate an existing access grant",
		Flags:       flag.NewFlagSet("validate", flag.ExitOnError),
		Run:         runValidate,
	}

	cmd.Flags.String("group", "", "Grant group name (CE-AWS-<Env>-<Ticket>)")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runValidate(args []string) error {
	cmd := newValidateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	group := cmd.Flags.Lookup("group").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if group == "" {
		return fmt.Errorf("group is required")
	}

	client := NewClient(serverURL(server))
	report, err := client.ValidateGrant(group)
	if err != nil {
		return fmt.Errorf("failed to validate grant: %w", err)
	}

	fmt.Printf("Validation report for %s (%s %s)\n", report.GroupName, report.Environment, report.TicketID)
	fmt.Printf("  Group valid:       %v\n", report.GroupValid)
	fmt.Printf("  Group synced:      %v\n", report.GroupSynced)
	fmt.Printf("  Permission set OK: %v\n", report.PermissionSetOK)
	fmt.Printf("  Assignment active: %v\n", report.AssignmentActive)
	for key, detail := range report.Details {
		fmt.Printf("  %s: %s\n", key, detail)
	}
	if report.Healthy() {
		fmt.Println("Grant is healthy")
	} else {
		fmt.Println("Grant is NOT healthy")
	}
	return nil
}
