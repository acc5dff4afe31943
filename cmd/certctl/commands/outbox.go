package commands

import (
	"github.com/spf13/cobra"
)

func outboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the certificate event outbox",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Count events not yet relayed to the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			n, err := a.Outbox.CountUnpublished(ctx)
			if err != nil {
				return err
			}
			out(cmd).Field("pending", n)
			return nil
		},
	})
	return cmd
}
