package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/resquel/internal/compiler"
	"github.com/roach88/resquel/internal/server"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Hooks are the before/after hooks routes may name. Programs embedding
	// resquel register theirs before building the command tree.
	Hooks *server.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command with no hooks registered.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithHooks(nil)
}

// NewRootCommandWithHooks creates the root command for the resquel CLI.
func NewRootCommandWithHooks(hooks *server.Registry) *cobra.Command {
	if hooks == nil {
		hooks = server.NewRegistry()
	}
	opts := &RootOptions{Hooks: hooks}

	cmd := &cobra.Command{
		Use:   "resquel",
		Short: "resquel - REST endpoints over SQL",
		Long: `Expose relational database tables as REST endpoints by binding HTTP
routes to SQL templates. Routes are declared in YAML or CUE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRoutesCommand(opts))
	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// hookSet lists the registered hook names for route validation.
func (o *RootOptions) hookSet() *compiler.HookSet {
	if o.Hooks == nil {
		return compiler.NewHookSet(nil, nil)
	}
	return compiler.NewHookSet(o.Hooks.BeforeNames(), o.Hooks.AfterNames())
}

// formatter builds the output formatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
