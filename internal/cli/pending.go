package cli

import (
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/mailbox"
)

type pendingResult struct {
	Pending []mailbox.Outgoing `json:"pending"`
	Count   int                `json:"count"`
}

func (a *app) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued items the bridge has not picked up yet",
		Long: `List the items in <root>/to-send/<client>/, oldest first. Items still
being written (their .lock marker is present) are shown as in-flight and
must not be sent yet.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			mb, closeFn, err := a.openMailbox()
			if err != nil {
				return err
			}
			defer closeFn()

			items, err := mb.Pending()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.out, pendingResult{Pending: items, Count: len(items)})
			}
			if len(items) == 0 {
				return a.println("Nothing pending.")
			}
			for _, item := range items {
				if err := a.println(pendingLine(item)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func pendingLine(item mailbox.Outgoing) string {
	state := green.Sprint("ready")
	if !item.Ready {
		state = yellow.Sprint("in-flight")
	}
	summary := mailbox.FirstLine(item.Payload)
	if item.QuotedTimestamp != "" {
		summary = "re " + item.QuotedTimestamp + ": " + mailbox.FirstLine(item.ReplyBody)
	}
	return strings.Join([]string{item.Timestamp, item.Kind.String(), state, faint.Sprint(truncate(summary, 60))}, "\t")
}

// truncate shortens s to at most limit runes, ending in "..." when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
