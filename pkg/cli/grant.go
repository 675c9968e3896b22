package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/platinummonkey/grantor/pkg/grant"
)

func newGrantCommand() *Command {
	cmd := &Command{
		Name:        "grant",
		Description: "Create an access grant (group + permission set + assignments)",
		Flags:       flag.NewFlagSet("grant", flag.ExitOnError),
		Run:         runGrant,
	}

	cmd.Flags.String("environment", "", "Target environment (Dev, QA, Staging, Prod)")
	cmd.Flags.String("ticket", "", "Access grant ticket ID (AG-NNNN)")
	cmd.Flags.String("owners", "", "Comma-separated group owner IDs")
	cmd.Flags.String("members", "", "Comma-separated group member IDs")
	cmd.Flags.String("template", "", "Permission template name")
	cmd.Flags.String("managed-policies", "", "Comma-separated managed policy ARNs (instead of a template)")
	cmd.Flags.String("inline-policy-file", "", "File containing an inline policy document")
	cmd.Flags.String("session-duration", "", "Session duration for custom permissions (e.g. PT4H)")
	cmd.Flags.String("description", "", "Grant description")
	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func runGrant(args []string) error {
	cmd := newGrantCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	environment := cmd.Flags.Lookup("environment").Value.String()
	ticket := cmd.Flags.Lookup("ticket").Value.String()
	owners := cmd.Flags.Lookup("owners").Value.String()
	members := cmd.Flags.Lookup("members").Value.String()
	template := cmd.Flags.Lookup("template").Value.String()
	managedPolicies := cmd.Flags.Lookup("managed-policies").Value.String()
	inlinePolicyFile := cmd.Flags.Lookup("inline-policy-file").Value.String()
	sessionDuration := cmd.Flags.Lookup("session-duration").Value.String()
	description := cmd.Flags.Lookup("description").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if environment == "" || ticket == "" {
		return fmt.Errorf("environment and ticket are required")
	}

	req := grant.AccessGrantRequest{
		Environment:        grant.Environment(environment),
		TicketID:           ticket,
		Owners:             splitList(owners),
		Members:            splitList(members),
		PermissionTemplate: template,
		Description:        description,
	}

	if managedPolicies != "" || inlinePolicyFile != "" {
		spec := &grant.CustomPermissionSpec{
			ManagedPolicyARNs: splitList(managedPolicies),
			SessionDuration:   sessionDuration,
		}
		if inlinePolicyFile != "" {
			data, err := os.ReadFile(inlinePolicyFile)
			if err != nil {
				return fmt.Errorf("failed to read inline policy file: %w", err)
			}
			spec.InlinePolicyDocument = string(data)
		}
		req.CustomPermissions = spec
	}

	client := NewClient(serverURL(server))
	result, err := client.CreateGrant(req)
	if err != nil {
		return printWorkflowError("create grant", err)
	}

	fmt.Printf("Created access grant %s\n", result.GroupName)
	if result.Operation != nil {
		fmt.Printf("  Operation:    %s (%s)\n", result.Operation.ID, result.Operation.Status)
	}
	fmt.Printf("  Group synced:  %v\n", result.ValidationResults.GroupSynced)
	fmt.Printf("  Permission set: %v\n", result.ValidationResults.PermissionSetCreated)
	fmt.Printf("  Assignment:    %v\n", result.ValidationResults.AssignmentActive)
	fmt.Printf("  Users can access: %v\n", result.ValidationResults.UsersCanAccess)
	return nil
}

// printWorkflowError surfaces a failed API call, including the operation
// record and its error list when the server attached one.
func printWorkflowError(action string, err error) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if apiErr.Operation != nil {
		fmt.Fprintf(os.Stderr, "Operation %s %s\n", apiErr.Operation.ID, apiErr.Operation.Status)
		for _, opErr := range apiErr.Operation.Errors {
			fmt.Fprintf(os.Stderr, "  [%s] %s: %s\n", opErr.Phase, opErr.Code, opErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, apiErr)
}
