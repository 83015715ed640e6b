package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newRequestCommand(container *CLIContainer) *cobra.Command {
	var (
		data    string
		query   []string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request to the backend",
		Long: `Send a request with the current session. An expired access token is
refreshed once and the request replayed; a failed refresh signs you out.`,
		Example: `  hs request GET /api/users/me
  hs request POST /api/bookings --data '{"serviceId":"plumbing"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			path := args[1]

			values := url.Values{}
			for _, pair := range query {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --query %q, expected key=value", pair)
				}
				values.Add(k, v)
			}

			extra := map[string]string{}
			for _, header := range headers {
				k, v, ok := strings.Cut(header, ":")
				if !ok {
					return fmt.Errorf("invalid --header %q, expected Name: value", header)
				}
				extra[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}

			var body []byte
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data must be valid JSON")
				}
				body = []byte(data)
				extra["Content-Type"] = "application/json"
			}

			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}

			resp, err := container.App.Backend.Do(cmd.Context(), method, path, values, body, extra)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}

			w := out(cmd)
			fmt.Fprintf(w, "%d\n", resp.StatusCode)

			var pretty bytes.Buffer
			if json.Indent(&pretty, resp.Body, "", "  ") == nil {
				fmt.Fprintln(w, pretty.String())
			} else if len(resp.Body) > 0 {
				fmt.Fprintln(w, string(resp.Body))
			}

			if !resp.OK() {
				return fmt.Errorf("backend answered %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header as 'Name: value' (repeatable)")

	return cmd
}
