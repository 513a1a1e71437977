package cli

import (
	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/mailbox"
)

type drainResult struct {
	Drained []mailbox.Incoming `json:"drained"`
	Count   int                `json:"count"`
}

type drainOptions struct {
	prefix      string
	stripPrefix bool
}

func (o *drainOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.prefix, "prefix", "", "only take messages whose first line is this id (default: config prefix)")
	cmd.Flags().BoolVar(&o.stripPrefix, "strip-prefix", false, "remove the prefix line from returned bodies")
}

// resolve fills in the configured prefix unless --prefix was given.
func (o *drainOptions) resolve(cmd *cobra.Command, cfgPrefix string) {
	if !cmd.Flags().Changed("prefix") {
		o.prefix = cfgPrefix
	}
}

func (o *drainOptions) present(items []mailbox.Incoming) []mailbox.Incoming {
	if !o.stripPrefix || o.prefix == "" {
		return items
	}
	out := make([]mailbox.Incoming, len(items))
	for i, item := range items {
		out[i] = mailbox.Incoming{
			Timestamp: item.Timestamp,
			Body:      mailbox.StripPrefixLine(item.Body, o.prefix),
		}
	}
	return out
}

func (a *app) drainCmd() *cobra.Command {
	var opts drainOptions
	var report bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Consume received messages",
		Long: `Take every received message for the client, delete it from
<root>/received/<client>/ and print it, oldest first.

Concurrent drains never return the same message. With --prefix only messages
whose first line equals the id are taken; the rest stay for other consumers.
Quiet when there is nothing to drain.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.resolve(cmd, a.cfg.Prefix)
			mb, closeFn, err := a.openMailbox()
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := mb.Drain(opts.prefix)
			if err != nil {
				return err
			}
			if report {
				return a.writeReport(rep)
			}
			items := opts.present(rep.Accepted())
			if a.jsonOut {
				return writeJSON(a.out, drainResult{Drained: items, Count: len(items)})
			}
			return a.writeItems(items)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&report, "report", false, "print the outcome of every entry instead of the messages")
	return cmd
}

func (a *app) writeItems(items []mailbox.Incoming) error {
	for _, item := range items {
		if err := a.printf("%s\n%s\n\n", green.Sprint("--- "+item.Timestamp+" ---"), item.Body); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) writeReport(rep mailbox.DrainReport) error {
	if a.jsonOut {
		return writeJSON(a.out, rep)
	}
	for _, res := range rep.Results {
		outcome := string(res.Outcome)
		switch res.Outcome {
		case mailbox.OutcomeAccepted:
			outcome = green.Sprint(outcome)
		case mailbox.OutcomeDeferred:
			outcome = yellow.Sprint(outcome)
		case mailbox.OutcomeMalformed:
			outcome = red.Sprint(outcome)
		}
		line := res.Name + "\t" + outcome
		if res.Reason != "" {
			line += "\t" + faint.Sprint(res.Reason)
		}
		if err := a.println(line); err != nil {
			return err
		}
	}
	return a.printf("%d accepted, %d deferred, %d malformed\n",
		rep.Count(mailbox.OutcomeAccepted),
		rep.Count(mailbox.OutcomeDeferred),
		rep.Count(mailbox.OutcomeMalformed))
}
