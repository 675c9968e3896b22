package cli

import (
	"flag"
	"fmt"
	"strconv"
)

func newOperationsCommand() *Command {
	cmd := &Command{
		Name:        "operations",
		Description: "List assignment operations",
		Flags:       flag.NewFlagSet("operations", flag.ExitOnError),
		Run:         runOperations,
	}

	cmd.Flags.String("status", "", "Filter by status (IN_PROGRESS, COMPLETED, FAILED, ROLLED_BACK)")
	cmd.Flags.String("kind", "", "Filter by kind (CREATE, DELETE, UPDATE)")
	cmd.Flags.String("limit", "", "Maximum number of results")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runOperations(args []string) error {
	cmd := newOperationsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	status := cmd.Flags.Lookup("status").Value.String()
	kind := cmd.Flags.Lookup("kind").Value.String()
	limitStr := cmd.Flags.Lookup("limit").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	limit := 0
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("invalid limit %q", limitStr)
		}
		limit = parsed
	}

	client := NewClient(serverURL(server))
	list, err := client.ListOperations(status, kind, limit)
	if err != nil {
		return fmt.Errorf("failed to list operations: %w", err)
	}

	if list.Count == 0 {
		fmt.Println("No operations found")
		return nil
	}

	fmt.Printf("%-38s %-8s %-12s %-12s %s\n", "ID", "KIND", "STATUS", "ASSIGNMENTS", "STARTED")
	for _, op := range list.Operations {
		fmt.Printf("%-38s %-8s %-12s %-12d %s\n", op.ID, op.Kind, op.Status, len(op.Assignments), op.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func newStatusCommand() *Command {
	cmd := &Command{
		Name:        "status",
		Description: "Show one operation record",
		Flags:       flag.NewFlagSet("status", flag.ExitOnError),
		Run:         runStatus,
	}

	cmd.Flags.String("id", "", "Operation ID")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runStatus(args []string) error {
	cmd := newStatusCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if id == "" {
		return fmt.Errorf("id is required")
	}

	client := NewClient(serverURL(server))
	op, err := client.GetOperation(id)
	if err != nil {
		return fmt.Errorf("failed to get operation: %w", err)
	}

	fmt.Printf("Operation %s\n", op.ID)
	fmt.Printf("  Kind:    %s\n", op.Kind)
	fmt.Printf("  Status:  %s\n", op.Status)
	fmt.Printf("  Started: %s\n", op.StartedAt.Format("2006-01-02 15:04:05"))
	if op.CompletedAt != nil {
		fmt.Printf("  Ended:   %s\n", op.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	for _, a := range op.Assignments {
		fmt.Printf("  %s -> %s on %s (%s)\n", a.GroupID, a.PermissionSetRef, a.AccountID, a.Status)
	}
	for _, opErr := range op.Errors {
		fmt.Printf("  error [%s] %s: %s\n", opErr.Phase, opErr.Code, opErr.Message)
	}
	return nil
}

func newRollbackCommand() *Command {
	cmd := &Command{
		Name:        "rollback",
		Description: "Roll back a completed operation",
		Flags:       flag.NewFlagSet("rollback", flag.ExitOnError),
		Run:         runRollback,
	}

	cmd.Flags.String("id", "", "Operation ID")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runRollback(args []string) error {
	cmd := newRollbackCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if id == "" {
		return fmt.Errorf("id is required")
	}

	client := NewClient(serverURL(server))
	resp, err := client.RollbackOperation(id)
	if err != nil {
		return fmt.Errorf("failed to roll back operation: %w", err)
	}

	fmt.Printf("Operation %s %s\n", resp.OperationID, resp.Status)
	return nil
}
