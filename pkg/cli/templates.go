package cli

import (
	"flag"
	"fmt"
	"strings"
)

func newTemplatesCommand() *Command {
	cmd := &Command{
		Name:        "templates",
		Description: "List permission templates",
		Flags:       flag.NewFlagSet("templates", flag.ExitOnError),
		Run:         runTemplates,
	}

	cmd.Flags.String("server", "", "Grantor server URL")

	return cmd
}

func runTemplates(args []string) error {
	cmd := newTemplatesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	server := cmd.Flags.Lookup("server").Value.String()

	client := NewClient(serverURL(server))
	list, err := client.ListTemplates()
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if list.Count == 0 {
		fmt.Println("No templates found")
		return nil
	}

	for _, t := range list.Templates {
		fmt.Printf("%s\n", t.Name)
		if t.Description != "" {
			fmt.Printf("  %s\n", t.Description)
		}
		if len(t.ManagedPolicyARNs) > 0 {
			fmt.Printf("  Policies: %s\n", strings.Join(t.ManagedPolicyARNs, ", "))
		}
		if t.SessionDuration != "" {
			fmt.Printf("  Session:  %s\n", t.SessionDuration)
		}
	}
	return nil
}
