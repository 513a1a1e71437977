package cli

import (
	"github.com/spf13/cobra"

	"github.com/avivsinai/signalbox/internal/config"
	"github.com/avivsinai/signalbox/internal/storage"
)

type initResult struct {
	Root     string `json:"root"`
	Client   string `json:"client"`
	ToSend   string `json:"to_send"`
	Received string `json:"received"`
	Config   string `json:"config,omitempty"`
}

func (a *app) initCmd() *cobra.Command {
	var force, noConfig bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the client's mailbox directories",
		Long: `Create <root>/to-send/<client>/ and <root>/received/<client>/ and record
root and client in ` + config.FileName + ` (or the --config path) so later
commands need no flags.`,
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{annotationCreatesConfig: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			mb, closeFn, err := a.openMailbox()
			if err != nil {
				return err
			}
			defer closeFn()

			store := storage.NewOS()
			for _, dir := range []string{mb.OutgoingDir(), mb.IncomingDir()} {
				if err := store.MkdirAll(dir); err != nil {
					return err
				}
			}

			res := initResult{
				Root:     mb.Root(),
				Client:   mb.Client(),
				ToSend:   mb.OutgoingDir(),
				Received: mb.IncomingDir(),
			}
			if !noConfig {
				path := a.configFile
				if path == "" {
					path = absPath(config.FileName)
				}
				if err := config.WriteConfig(path, a.cfg, force); err != nil {
					return WithExitCode(ExitUsage, err)
				}
				res.Config = path
			}

			if a.jsonOut {
				return writeJSON(a.out, res)
			}
			if err := a.printf("Initialized mailbox for %s at %s\n", res.Client, res.Root); err != nil {
				return err
			}
			if res.Config != "" {
				return a.printf("Wrote %s\n", faint.Sprint(res.Config))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&noConfig, "no-config", false, "do not write a config file")
	return cmd
}
