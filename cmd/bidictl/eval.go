package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/webdriverbidi/internal/errors"
	"github.com/vango-dev/webdriverbidi/pkg/modules/browsingcontext"
	"github.com/vango-dev/webdriverbidi/pkg/modules/script"
)

func evalCmd(g *globalOptions) *cobra.Command {
	var (
		contextID string
		sandbox   string
		noAwait   bool
	)

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a JavaScript expression in a browsing context",
		Long: `Evaluate a JavaScript expression and print the result.

Without --context the expression runs in the first top-level browsing
context. Promises are awaited unless --no-await is given.`,
		Example: `  bidictl eval 'document.title'
  bidictl eval --context 7A1F 'location.href'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if contextID == "" {
				if contextID, err = firstContext(ctx, s.BrowsingContext); err != nil {
					return err
				}
			}

			res, err := s.Script.Evaluate(ctx, script.EvaluateParams{
				Expression:   strings.Join(args, " "),
				Target:       script.ContextTarget{Context: contextID, Sandbox: sandbox},
				AwaitPromise: !noAwait,
			})
			if err != nil {
				return remote(err)
			}

			switch r := res.(type) {
			case script.EvaluateException:
				return errors.New("E143").
					WithDetail(r.ExceptionDetails.Text).
					WithSuggestion(fmt.Sprintf("The exception was thrown at line %d, column %d",
						r.ExceptionDetails.LineNumber, r.ExceptionDetails.ColumnNumber))
			case script.EvaluateSuccess:
				fmt.Fprintln(cmd.OutOrStdout(), formatRemote(r.Result))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "browsing context id")
	cmd.Flags().StringVar(&sandbox, "sandbox", "", "evaluate in a named sandbox")
	cmd.Flags().BoolVar(&noAwait, "no-await", false, "do not await a returned promise")
	return cmd
}

// firstContext returns the id of the first top-level browsing context.
func firstContext(ctx context.Context, bc *browsingcontext.Module) (string, error) {
	depth := uint(0)
	tree, err := bc.GetTree(ctx, browsingcontext.GetTreeParams{MaxDepth: &depth})
	if err != nil {
		return "", remote(err)
	}
	if len(tree) == 0 {
		return "", errors.New("E140").
			WithDetail("The remote end has no open browsing context.").
			WithSuggestion("Pass --context with a context id")
	}
	return tree[0].Context, nil
}

// formatRemote renders a remote value for the terminal. Strings print
// bare, primitives print as their serialized value and everything else
// prints its type with the handle when one exists.
func formatRemote(v script.RemoteValue) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	if v.Type == script.TypeNumber {
		// NaN, -0 and the infinities arrive as strings.
		return strings.Trim(string(v.Value), `"`)
	}
	switch {
	case len(v.Value) > 0:
		return string(v.Value)
	case v.Handle != "":
		return fmt.Sprintf("%s (handle %s)", v.Type, v.Handle)
	}
	return string(v.Type)
}
