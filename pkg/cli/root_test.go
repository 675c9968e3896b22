package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "grantor-cli", root.Name)
	assert.Equal(t, "Grantor - Access Grant Orchestrator CLI", root.Description)
	assert.NotNil(t, root.Subcommands)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{
		"grant",
		"grants",
		"validate",
		"assign",
		"bulk-assign",
		"operations",
		"status",
		"rollback",
		"templates",
	}

	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
		assert.NotNil(t, root.Subcommands[cmdName], "Expected subcommand %s to be non-nil", cmdName)
	}

	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

// captureStdout runs fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestCommandUsage(t *testing.T) {
	root := NewRootCommand()

	output, err := captureStdout(t, root.usage)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: grantor-cli <command> [args]")
	assert.Contains(t, output, "Commands:")
	assert.Contains(t, output, "grant")
	assert.Contains(t, output, "operations")
	assert.Contains(t, output, "rollback")
	assert.Contains(t, output, "templates")
}

func TestCommandExecute_NoArgs(t *testing.T) {
	root := NewRootCommand()

	oldArgs := os.Args
	os.Args = []string{"grantor-cli"}
	defer func() { os.Args = oldArgs }()

	output, err := captureStdout(t, root.Execute)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: grantor-cli <command> [args]")
}

func TestCommandExecute_HelpFlag(t *testing.T) {
	for _, helpFlag := range []string{"-h", "--help"} {
		t.Run(helpFlag, func(t *testing.T) {
			root := NewRootCommand()

			oldArgs := os.Args
			os.Args = []string{"grantor-cli", helpFlag}
			defer func() { os.Args = oldArgs }()

			output, err := captureStdout(t, root.Execute)

			assert.NoError(t, err)
			assert.Contains(t, output, "Usage: grantor-cli <command> [args]")
		})
	}
}

func TestCommandExecute_ValidSubcommand(t *testing.T) {
	root := NewRootCommand()

	mockCalled := false
	var mockArgs []string
	root.Subcommands["test"] = &Command{
		Name:        "test",
		Description: "Test command",
		Run: func(args []string) error {
			mockCalled = true
			mockArgs = args
			return nil
		},
	}

	oldArgs := os.Args
	os.Args = []string{"grantor-cli", "test", "-flag", "value"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()

	assert.NoError(t, err)
	assert.True(t, mockCalled)
	assert.Equal(t, []string{"-flag", "value"}, mockArgs)
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand()

	oldArgs := os.Args
	os.Args = []string{"grantor-cli", "bogus"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: bogus")
}

func TestServerURL(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("GRANTOR_SERVER", "http://env:9090")
		assert.Equal(t, "http://flag:8080", serverURL("http://flag:8080"))
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("GRANTOR_SERVER", "http://env:9090")
		assert.Equal(t, "http://env:9090", serverURL(""))
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("GRANTOR_SERVER", "")
		assert.Equal(t, DefaultServerURL, serverURL(""))
	})
}
