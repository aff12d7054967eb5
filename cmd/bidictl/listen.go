package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/webdriverbidi/internal/errors"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

func listenCmd(g *globalOptions) *cobra.Command {
	var (
		contexts []string
		count    int
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen <event|module>...",
		Short: "Subscribe to events and print them as they arrive",
		Long: `Subscribe to events and print one JSON line per event.

A module name such as "log" subscribes to every event of that module.
listen runs until interrupted, until --count events were printed or
until --duration has passed.`,
		Example: `  bidictl listen log.entryAdded
  bidictl listen browsingContext --count 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return errors.New("E140").WithDetail("--count must not be negative")
			}
			printer := newEventPrinter(cmd.OutOrStdout(), args, count)

			s, err := g.connect(cmd, transport.WithFrameObserver(printer))
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			sub, err := s.Session.Subscribe(ctx, args, contexts...)
			if err != nil {
				return remote(err)
			}
			s.logger.Debug("subscribed", "subscription", sub.Subscription, "events", args)

			var timeout <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				timeout = timer.C
			}

			select {
			case <-printer.done:
			case <-timeout:
			case <-ctx.Done():
			case <-s.Done():
				return errors.New("E063").WithDetail("The remote end closed the connection while listening.")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&contexts, "contexts", nil, "only events from these browsing contexts")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events, 0 means no limit")
	cmd.Flags().DurationVar(&duration, "duration", 0, "exit after this long, 0 means no limit")
	return cmd
}

// eventPrinter is a transport.FrameObserver that writes matching event
// frames to w, one JSON object per line.
type eventPrinter struct {
	w       io.Writer
	filters []string
	limit   int

	mu      sync.Mutex
	printed int
	done    chan struct{}
}

func newEventPrinter(w io.Writer, filters []string, limit int) *eventPrinter {
	return &eventPrinter{
		w:       w,
		filters: filters,
		limit:   limit,
		done:    make(chan struct{}),
	}
}

// matches reports whether method is one of the filters or belongs to a
// module named by one.
func (p *eventPrinter) matches(method string) bool {
	for _, f := range p.filters {
		if method == f || strings.HasPrefix(method, f+".") {
			return true
		}
	}
	return false
}

func (p *eventPrinter) ObserveFrame(dir transport.Direction, data []byte) {
	if dir != transport.Inbound {
		return
	}
	msg, err := protocol.ClassifyMessage(data)
	if err != nil || msg.Type != protocol.MessageEvent || !p.matches(msg.Method) {
		return
	}

	var line bytes.Buffer
	line.WriteString(`{"method":`)
	method, _ := json.Marshal(msg.Method)
	line.Write(method)
	line.WriteString(`,"params":`)
	if err := json.Compact(&line, msg.Params); err != nil {
		line.WriteString("null")
	}
	line.WriteString("}\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && p.printed >= p.limit {
		return
	}
	p.w.Write(line.Bytes())
	p.printed++
	if p.limit > 0 && p.printed == p.limit {
		close(p.done)
	}
}
