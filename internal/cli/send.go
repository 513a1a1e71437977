package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/fsq"
	"github.com/avivsinai/signalbox/internal/mailbox"
)

type enqueueResult struct {
	Timestamp string   `json:"timestamp"`
	Kind      fsq.Kind `json:"kind"`
	Path      string   `json:"path"`
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [text|@file|@-]",
		Short: "Queue a text message for the bridge to send",
		Long: `Queue a text message in <root>/to-send/<client>/.

The text is taken from the argument, from a file with @path, or from stdin
with @- or when no argument is given.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			body, err := a.readBody(args)
			if err != nil {
				return err
			}
			return a.enqueue(fsq.KindMessage, func(mb *mailbox.Mailbox) (string, error) {
				return mb.EnqueueMessage(body)
			})
		},
	}
}

func (a *app) attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <path>",
		Short: "Queue a file to be sent as an attachment",
		Long: `Queue an attachment. Only the absolute path is written to the mailbox;
the bridge reads the file itself, so it must stay in place until sent.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			path := absPath(strings.TrimSpace(args[0]))
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return NotFoundError("attachment not found: %s", path)
				}
				return err
			}
			if !info.Mode().IsRegular() {
				return UsageError("attachment is not a regular file: %s", path)
			}
			return a.enqueue(fsq.KindAttachment, func(mb *mailbox.Mailbox) (string, error) {
				return mb.EnqueueAttachment(path)
			})
		},
	}
}

func (a *app) replyCmd() *cobra.Command {
	var quote string

	cmd := &cobra.Command{
		Use:   "reply --quote <timestamp> [text|@file|@-]",
		Short: "Queue a reply quoting a received message",
		Long: `Queue a reply. --quote is the timestamp of the message being answered,
as printed by drain.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			quote = strings.TrimSpace(quote)
			if !isTimestamp(quote) {
				return UsageError("--quote must be a message timestamp, got %q", quote)
			}
			body, err := a.readBody(args)
			if err != nil {
				return err
			}
			return a.enqueue(fsq.KindReply, func(mb *mailbox.Mailbox) (string, error) {
				return mb.EnqueueReply(body, quote)
			})
		},
	}
	cmd.Flags().StringVar(&quote, "quote", "", "timestamp of the message being replied to")
	return cmd
}

func (a *app) enqueue(kind fsq.Kind, fn func(*mailbox.Mailbox) (string, error)) error {
	mb, closeFn, err := a.openMailbox()
	if err != nil {
		return err
	}
	defer closeFn()

	stem, err := fn(mb)
	if err != nil {
		return err
	}
	res := enqueueResult{
		Timestamp: stem,
		Kind:      kind,
		Path:      filepath.Join(mb.OutgoingDir(), fsq.PayloadName(stem, kind)),
	}
	if a.jsonOut {
		return writeJSON(a.out, res)
	}
	return a.println(res.Timestamp)
}

func isTimestamp(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
