package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/mailbox"
	"github.com/avivsinai/signalbox/internal/watch"
)

type watchEvent struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp,omitempty"`
	Body      string `json:"body,omitempty"`
}

func (a *app) watchCmd() *cobra.Command {
	var opts drainOptions
	var timeout time.Duration
	var poll, once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drain received messages as they arrive",
		Long: `Drain the client's received messages now and again whenever new ones land,
printing each one. Uses filesystem notifications, or polling with --poll
(for network filesystems) or when the directory cannot be watched yet.

With --timeout the command exits 4 if nothing was received in time. With
--json each message is printed as one JSON object per line.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.resolve(cmd, a.cfg.Prefix)
			if timeout < 0 {
				return UsageError("--timeout must be >= 0")
			}
			if !cmd.Flags().Changed("poll") {
				poll = a.cfg.Watch.Poll
			}

			mb, closeFn, err := a.openMailbox()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			errDone := errors.New("done")
			received := 0
			err = watch.Run(ctx, watch.Config{
				Dir:          mb.IncomingDir(),
				Poll:         poll,
				PollInterval: a.cfg.Watch.PollInterval,
				Logger:       a.logger,
			}, func(context.Context) error {
				items, err := mb.DrainIncoming(opts.prefix)
				if err != nil {
					return err
				}
				items = opts.present(items)
				if err := a.emitWatched(items); err != nil {
					return err
				}
				received += len(items)
				if once && received > 0 {
					return errDone
				}
				return nil
			})

			switch {
			case errors.Is(err, errDone):
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				if received > 0 {
					return nil
				}
				if a.jsonOut {
					if err := writeJSONLine(a.out, watchEvent{Event: "timeout"}); err != nil {
						return err
					}
				}
				return TimeoutError("no messages within %s", timeout)
			case errors.Is(err, context.Canceled):
				return nil
			}
			return err
		},
	}
	opts.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (0 = run until interrupted)")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll instead of using filesystem notifications")
	cmd.Flags().BoolVar(&once, "once", false, "exit after the first batch of messages")
	return cmd
}

func (a *app) emitWatched(items []mailbox.Incoming) error {
	if !a.jsonOut {
		return a.writeItems(items)
	}
	for _, item := range items {
		if err := writeJSONLine(a.out, watchEvent{Event: "message", Timestamp: item.Timestamp, Body: item.Body}); err != nil {
			return err
		}
	}
	return nil
}
