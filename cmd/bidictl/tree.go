package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/webdriverbidi/pkg/modules/browsingcontext"
)

func treeCmd(g *globalOptions) *cobra.Command {
	var (
		root     string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the browsing context tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			params := browsingcontext.GetTreeParams{Root: root}
			if maxDepth >= 0 {
				d := uint(maxDepth)
				params.MaxDepth = &d
			}
			contexts, err := s.BrowsingContext.GetTree(cmd.Context(), params)
			if err != nil {
				return remote(err)
			}
			printTree(cmd.OutOrStdout(), contexts, 0)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "start at this browsing context")
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "limit the depth of the tree, -1 means unlimited")
	return cmd
}

func printTree(w io.Writer, contexts []browsingcontext.Info, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range contexts {
		fmt.Fprintf(w, "%s%s  %s\n", indent, c.Context, c.URL)
		printTree(w, c.Children, depth+1)
	}
}
