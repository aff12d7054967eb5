package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/webdriverbidi/internal/errors"
)

func sendCmd(g *globalOptions) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "send <method> [params]",
		Short: "Send a raw command and print its result",
		Long: `Send any command by method name. Params must be a JSON object and
default to {}. The result is printed as JSON.`,
		Example: `  bidictl send session.status
  bidictl send browsingContext.create '{"type":"tab"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			if !strings.Contains(method, ".") {
				return errors.New("E140").
					WithDetail(fmt.Sprintf("%q is not a method name", method)).
					WithSuggestion(`Methods are written module.command, for example "session.status"`)
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			s, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.Execute(cmd.Context(), method, params)
			if err != nil {
				return remote(err)
			}
			return printJSON(cmd, result, compact)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "print the result on one line")
	return cmd
}

// parseParams validates the optional params argument as a JSON object.
func parseParams(args []string) (json.RawMessage, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, nil
	}
	raw := json.RawMessage(args[0])
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		e := errors.New("E141").WithDetail(fmt.Sprintf("Got %s", args[0]))
		if err != nil {
			e.Wrap(err)
		}
		return nil, e
	}
	return raw, nil
}

func printJSON(cmd *cobra.Command, data json.RawMessage, compact bool) error {
	var buf bytes.Buffer
	var err error
	if compact {
		err = json.Compact(&buf, data)
	} else {
		err = json.Indent(&buf, data, "", "  ")
	}
	if err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
