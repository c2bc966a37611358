package commands

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pushbricks/pushbricks/httpclient"
)

var callMethods = []string{httpclient.MethodGet, httpclient.MethodPut, httpclient.MethodPost, httpclient.MethodDelete}

// CallOptions holds flags for the call command.
type CallOptions struct {
	Headers  []string
	Body     string
	BodyFile string
	Include  bool
}

// NewCallCommand sends one raw request through the client chain.
func NewCallCommand(root *rootOptions) *cobra.Command {
	opts := &CallOptions{}

	cmd := &cobra.Command{
		Use:   "call <method> <url>",
		Short: "Send a raw request through the retrying client",
		Example: `  nhctl call GET https://example.com/health
  nhctl call POST https://example.com/items -H 'X-Trace: 1' --body '{"a":1}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCallRequest(args[0], args[1], opts)
			if err != nil {
				return err
			}

			return withSession(root, cmd.ErrOrStderr(), func(s *session) error {
				resp, err := s.adapter().Do(cmd.Context(), req.Method, req)
				if err != nil {
					if failed, ok := httpclient.ResponseFromError(err); ok && failed.StatusCode() > 0 {
						printResponse(cmd, failed, opts.Include)
					}
					return err
				}
				printResponse(cmd, resp, opts.Include)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().StringVarP(&opts.Body, "body", "d", "", "Request body")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "", "Read the request body from a file")
	cmd.Flags().BoolVarP(&opts.Include, "include", "i", false, "Print the status line and response headers")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func buildCallRequest(method, url string, opts *CallOptions) (*httpclient.Request, error) {
	method = strings.ToUpper(method)
	if !slices.Contains(callMethods, method) {
		return nil, fmt.Errorf("unsupported method %q", method)
	}

	headers := make(map[string]string, len(opts.Headers))
	for _, h := range opts.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed header %q, expected 'Name: value'", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	body := opts.Body
	if opts.BodyFile != "" {
		data, err := os.ReadFile(opts.BodyFile)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		body = string(data)
	}

	req := &httpclient.Request{URL: url, Method: method, Headers: headers}
	if body != "" {
		req.Template = httpclient.TemplateFunc(func() (string, error) { return body, nil })
	}
	return req, nil
}

func printResponse(cmd *cobra.Command, resp *httpclient.Response, include bool) {
	out := cmd.OutOrStdout()
	if include {
		fmt.Fprintf(out, "%d\n", resp.StatusCode())
		for name, value := range resp.Headers() {
			fmt.Fprintf(out, "%s: %s\n", name, value)
		}
		fmt.Fprintln(out)
	}
	if resp.Body() != "" {
		fmt.Fprintln(out, resp.Body())
	}
}
