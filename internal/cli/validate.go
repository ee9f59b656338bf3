package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/resquel/internal/compiler"
	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/route"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Routes int                        `json:"routes"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file|routes-dir>",
		Short: "Validate routes without connecting to the database",
		Long: `Validate route declarations without opening a database connection.

The argument is either a YAML config file (its inline routes, its routesDir
and its settings are checked) or a directory of CUE route files.

Checks methods, endpoint patterns, query and count shapes, parameter
paths, failure policies, hook names and duplicate patterns.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	routes, validationErrors, err := collectRoutes(path, formatter)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeConfig, err.Error(), nil)
	}

	validationErrors = append(validationErrors, compiler.Validate(routes, opts.hookSet())...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, len(routes))
}

// collectRoutes loads the routes named by path. Compile and config errors
// that do not prevent loading come back as validation errors; err is set
// only when nothing could be loaded.
func collectRoutes(path string, formatter *OutputFormatter) ([]route.Spec, []compiler.ValidationError, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}

	if info.IsDir() {
		return collectDirRoutes(path, formatter)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	formatter.VerboseLog("Loaded %s: %d inline route(s)", path, len(cfg.Routes))

	var errs []compiler.ValidationError
	if err := cfg.Validate(); err != nil {
		errs = append(errs, compiler.ValidationError{
			Field:   "config",
			Message: err.Error(),
			Code:    ErrCodeConfig,
		})
	}

	routes := cfg.Routes
	if cfg.RoutesDir != "" {
		dirRoutes, dirErrs, err := collectDirRoutes(cfg.RoutesDir, formatter)
		if err != nil {
			return nil, nil, err
		}
		routes = append(routes, dirRoutes...)
		errs = append(errs, dirErrs...)
	}
	return routes, errs, nil
}

func collectDirRoutes(dir string, formatter *OutputFormatter) ([]route.Spec, []compiler.ValidationError, error) {
	loadResult, loadErrors := LoadRoutes(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)
	for _, spec := range loadResult.Routes {
		formatter.VerboseLog("Compiled route: %s %s", spec.Name, spec.String())
	}

	var errs []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			errs = append(errs, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr.Pos),
			})
			continue
		}
		errs = append(errs, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric})
	}
	return loadResult.Routes, errs, nil
}

// lineOf extracts the line number from a CUE position.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, routes int) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Routes: routes})
	}

	fmt.Fprintf(formatter.Writer, "✓ All routes valid (%d)\n", routes)
	return nil
}

// outputValidateError outputs a single error that stopped validation.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.Respond(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
