package cli

import (
	"flag"
	"fmt"
	"os"
)

// DefaultServerURL is used when -server is not given and GRANTOR_SERVER
// is unset.
const DefaultServerURL = "http://localhost:8080"

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "grantor-cli",
		Description: "Grantor - Access Grant Orchestrator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("grantor-cli", flag.ExitOnError),
	}

	root.Subcommands["grant"] = newGrantCommand()
	root.Subcommands["grants"] = newGrantsCommand()
	root.Subcommands["validate"] = newValidateCommand()
	root.Subcommands["assign"] = newAssignCommand()
	root.Subcommands["bulk-assign"] = newBulkAssignCommand()
	root.Subcommands["operations"] = newOperationsCommand()
	root.Subcommands["status"] = newStatusCommand()
	root.Subcommands["rollback"] = newRollbackCommand()
	root.Subcommands["templates"] = newTemplatesCommand()

	return root
}

// Execute runs the command
func (c *Command) Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for name, cmd := range c.Subcommands {
		fmt.Printf("  %-15s %s\n", name, cmd.Description)
	}
	return nil
}

// serverURL resolves the server base URL from the flag or environment.
func serverURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GRANTOR_SERVER"); env != "" {
		return env
	}
	return DefaultServerURL
}
