package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/resquel/internal/compiler"
	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/server"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	ConfigPath string
	Body       string            // JSON request body
	Form       map[string]string // url-encoded form fields
	Headers    []string          // "Name: value"

	// TraceIDs allows overriding the request id generator (for testing).
	TraceIDs engine.TraceIDGenerator
}

// CallResult is the response of one in-process call.
type CallResult struct {
	Route  string          `json:"route,omitempty"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	return newCallCommand(&CallOptions{RootOptions: rootOpts})
}

func newCallCommand(opts *CallOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <METHOD> <path>",
		Short: "Send one request to the routes without starting a server",
		Long: `Send a single request through the full route pipeline in-process,
against the database configured in the config file.

Configured credentials are applied unless an Authorization header is given.

Exit codes:
  0 - 2xx or 3xx response
  1 - 4xx or 5xx response
  2 - Command error (invalid config, database unreachable)

Examples:
  resquel call GET /customer -c ./resquel.yaml
  resquel call POST /customer --body '{"firstName":"Ada","email":"ada@example.com"}'
  resquel call PUT /customer/1 --form email=ada@analytical.engine
  resquel call GET '/customer/1?requestId=debug-1' --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "resquel.yaml", "path to config file")
	cmd.Flags().StringVarP(&opts.Body, "body", "d", "", "JSON request body")
	cmd.Flags().StringToStringVar(&opts.Form, "form", nil, "url-encoded form field (key=value)")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, `request header ("Name: value")`)

	return cmd
}

func runCall(opts *CallOptions, method, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	method = strings.ToUpper(method)
	if !strings.HasPrefix(target, "/") {
		return NewExitError(ExitCommandError, fmt.Sprintf("path must start with /: %q", target))
	}
	if opts.Body != "" && len(opts.Form) > 0 {
		return NewExitError(ExitCommandError, "--body and --form are mutually exclusive")
	}
	if opts.Body != "" && !json.Valid([]byte(opts.Body)) {
		return NewExitError(ExitCommandError, "--body is not valid JSON")
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return WrapExitError(ExitCommandError, "config not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if errs := compiler.Validate(cfg.Routes, opts.hookSet()); len(errs) > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid routes: %s", errs[0].Error()))
	}

	conn, err := openDatabase(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := formatter.Logger()

	var obs *server.Observation
	handler, err := server.NewHandler(cfg, cfg.Routes, server.Deps{
		Connector: conn,
		Hooks:     opts.Hooks,
		Logger:    logger,
		TraceIDs:  opts.TraceIDs,
		Observer: func(o server.Observation) {
			obs = &o
		},
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build handler", err)
	}

	req, err := buildCallRequest(cmd, method, target, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid request", err)
	}
	if req.Header.Get("Authorization") == "" {
		applyCredentials(req, cfg.Auth)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	result := CallResult{Status: rec.Code}
	if body := bytes.TrimSpace(rec.Body.Bytes()); len(body) > 0 {
		result.Body = json.RawMessage(body)
	}
	requestID := ""
	if obs != nil {
		result.Route = obs.Route
		requestID = obs.RequestID
	}
	formatter.VerboseLog("%s %s -> %d (request %s)", method, target, rec.Code, requestID)

	if err := outputCall(formatter, result, requestID); err != nil {
		return err
	}
	if rec.Code >= http.StatusBadRequest {
		return NewExitError(ExitFailure, fmt.Sprintf("%s %s returned %d", method, target, rec.Code))
	}
	return nil
}

func buildCallRequest(cmd *cobra.Command, method, target string, opts *CallOptions) (*http.Request, error) {
	var body io.Reader
	contentType := ""
	switch {
	case opts.Body != "":
		body = strings.NewReader(opts.Body)
		contentType = "application/json"
	case len(opts.Form) > 0:
		form := url.Values{}
		for k, v := range opts.Form {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, h := range opts.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("header %q must be \"Name: value\"", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}

func applyCredentials(req *http.Request, auth config.AuthConfig) {
	switch {
	case auth.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+auth.BearerToken)
	case auth.Username != "" && auth.Password != "":
		req.SetBasicAuth(auth.Username, auth.Password)
	}
}

func outputCall(formatter *OutputFormatter, result CallResult, requestID string) error {
	if formatter.JSON() {
		status := "ok"
		if result.Status >= http.StatusBadRequest {
			status = "error"
		}
		return formatter.Respond(CLIResponse{
			Status:    status,
			Data:      result,
			RequestID: requestID,
		})
	}

	fmt.Fprintf(formatter.Writer, "HTTP %d %s\n", result.Status, http.StatusText(result.Status))
	if len(result.Body) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result.Body, "", "  "); err != nil {
		fmt.Fprintln(formatter.Writer, string(result.Body))
		return nil
	}
	fmt.Fprintln(formatter.Writer, pretty.String())
	return nil
}
