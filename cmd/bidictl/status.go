package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd(g *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask whether the remote end can create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			status, err := s.Session.Status(cmd.Context())
			if err != nil {
				return remote(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(status)
			}
			fmt.Fprintf(out, "ready:   %t\n", status.Ready)
			fmt.Fprintf(out, "message: %s\n", status.Message)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}
