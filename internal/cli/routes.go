package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/resquel/internal/route"
)

// RouteInfo describes one route in `routes` output.
type RouteInfo struct {
	Name          string `json:"name,omitempty"`
	Method        string `json:"method"`
	Endpoint      string `json:"endpoint"`
	Pattern       string `json:"pattern,omitempty"`
	Form          string `json:"form"`
	Statements    int    `json:"statements"`
	Count         bool   `json:"count"`
	Before        string `json:"before,omitempty"`
	After         string `json:"after,omitempty"`
	FailurePolicy string `json:"failure_policy,omitempty"`
}

// NewRoutesCommand creates the routes command.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes <config-file|routes-dir>",
		Short: "List declared routes",
		Long: `List the routes declared in a config file or a CUE routes directory,
in registration order, with their query form and hooks.

Example:
  resquel routes ./resquel.yaml
  resquel routes ./routes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRoutes(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	routes, loadErrs, err := collectRoutes(path, formatter)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeConfig, err.Error(), nil)
	}
	for _, e := range loadErrs {
		formatter.VerboseLog("warning: %s", e.Error())
	}

	infos := make([]RouteInfo, 0, len(routes))
	for _, spec := range routes {
		infos = append(infos, describeRoute(spec))
	}

	if formatter.JSON() {
		return formatter.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No routes declared.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tENDPOINT\tFORM\tSTATEMENTS\tCOUNT\tHOOKS\tPOLICY")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			info.Method, info.Endpoint, info.Form, info.Statements,
			yesNo(info.Count), hooksLabel(info), policyLabel(info.FailurePolicy))
	}
	return tw.Flush()
}

// describeRoute summarizes a route. Shape errors are reported by validate,
// so the statement count falls back to the declared element count.
func describeRoute(spec route.Spec) RouteInfo {
	info := RouteInfo{
		Name:          spec.Name,
		Method:        string(spec.Method.Canonical()),
		Endpoint:      spec.Endpoint,
		Form:          spec.Query.Form.String(),
		Count:         spec.Count != nil,
		Before:        spec.Before,
		After:         spec.After,
		FailurePolicy: string(spec.FailurePolicy),
	}
	if pattern, err := spec.MuxPattern(); err == nil {
		info.Pattern = pattern
	}
	if stmts, err := spec.Query.Statements(); err == nil {
		info.Statements = len(stmts)
	} else {
		info.Statements = len(spec.Query.Elements)
	}
	return info
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func hooksLabel(info RouteInfo) string {
	switch {
	case info.Before != "" && info.After != "":
		return info.Before + "," + info.After
	case info.Before != "":
		return info.Before
	case info.After != "":
		return info.After
	default:
		return "-"
	}
}

func policyLabel(p string) string {
	if p == "" {
		return "inherit"
	}
	return p
}
