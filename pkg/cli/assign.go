package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

func newAssignCommand() *Command {
	cmd := &Command{
		Name:        "assign",
		Description: "Attach an existing group to a permission set on one account",
		Flags:       flag.NewFlagSet("assign", flag.ExitOnError),
		Run:         runAssign,
	}

	cmd.Flags.String("group-id", "", "Identity group ID")
	cmd.Flags.String("account", "", "Target account ID")
	cmd.Flags.String("permission-set", "", "Permission set reference")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runAssign(args []string) error {
	cmd := newAssignCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	groupID := cmd.Flags.Lookup("group-id").Value.String()
	account := cmd.Flags.Lookup("account").Value.String()
	permissionSet := cmd.Flags.Lookup("permission-set").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if groupID == "" || account == "" || permissionSet == "" {
		return fmt.Errorf("group-id, account and permission-set are required")
	}

	client := NewClient(serverURL(server))
	op, err := client.CreateAssignment(orchestrator.AssignmentRequest{
		GroupID:          groupID,
		AccountID:        account,
		PermissionSetRef: permissionSet,
	})
	if err != nil {
		return printWorkflowError("create assignment", err)
	}

	fmt.Printf("Operation %s %s\n", op.ID, op.Status)
	for _, a := range op.Assignments {
		fmt.Printf("  %s -> %s on %s (%s)\n", a.GroupID, a.PermissionSetRef, a.AccountID, a.Status)
	}
	return nil
}

func newBulkAssignCommand() *Command {
	cmd := &Command{
		Name:        "bulk-assign",
		Description: "Run a batch of assignments from a JSON file",
		Flags:       flag.NewFlagSet("bulk-assign", flag.ExitOnError),
		Run:         runBulkAssign,
	}

	cmd.Flags.String("file", "", "JSON file with an array of assignment requests")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runBulkAssign(args []string) error {
	cmd := newBulkAssignCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	file := cmd.Flags.Lookup("file").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if file == "" {
		return fmt.Errorf("file is required")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	var reqs []orchestrator.AssignmentRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("failed to parse %s: %w", file, err)
	}

	client := NewClient(serverURL(server))
	op, err := client.BulkAssign(reqs)
	if err != nil {
		return printWorkflowError("run bulk assignment", err)
	}

	fmt.Printf("Operation %s %s (%d assignments)\n", op.ID, op.Status, len(op.Assignments))
	for _, a := range op.Assignments {
		fmt.Printf("  %s -> %s on %s (%s)\n", a.GroupID, a.PermissionSetRef, a.AccountID, a.Status)
	}
	return nil
}
