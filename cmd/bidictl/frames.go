package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/webdriverbidi/internal/errors"
	"github.com/vango-dev/webdriverbidi/pkg/recorder"
)

func framesCmd(g *globalOptions) *cobra.Command {
	var (
		method    string
		messageID uint64
		limit     int
		showData  bool
	)

	cmd := &cobra.Command{
		Use:   "frames [database]",
		Short: "List frames recorded with --record",
		Long: `List recorded wire frames in the order they were observed.

The database defaults to --record or the recorder path in the config.`,
		Example: `  bidictl frames traffic.db --method script.evaluate
  bidictl frames traffic.db --id 3 --data`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Recorder.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("E140").
					WithDetail("No recording database given.").
					WithSuggestion("Pass the database path or --record")
			}
			if _, err := os.Stat(path); err != nil {
				return errors.New("E142").Wrap(err)
			}

			store, err := recorder.Open(path)
			if err != nil {
				return errors.New("E142").Wrap(err)
			}
			defer store.Close()

			frames, err := store.Frames(cmd.Context(), recorder.Query{
				Method:    method,
				MessageID: messageID,
				Limit:     limit,
			})
			if err != nil {
				return errors.New("E142").Wrap(err)
			}

			out := cmd.OutOrStdout()
			for _, f := range frames {
				fmt.Fprintf(out, "%s  %-3s  %-9s  %-4s  %s\n",
					f.RecordedAt.UTC().Format(time.RFC3339Nano), f.Direction, f.Kind, idString(f.MessageID), f.Method)
				if showData {
					fmt.Fprintf(out, "    %s\n", f.Data)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "only frames with this command or event method")
	cmd.Flags().Uint64Var(&messageID, "id", 0, "only the command and response with this id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of frames, 0 means all")
	cmd.Flags().BoolVar(&showData, "data", false, "print the raw frame under each line")
	return cmd
}

func idString(id uint64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}
