package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run registry-wide integrity checks",
	}
	cmd.AddCommand(auditDisplayNumbersCommand(), auditSupersessionCommand())
	return cmd
}

func auditDisplayNumbersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "display-numbers",
		Short: "Report stored display numbers by format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			report, err := a.Certificates.AuditDisplayNumbers(ctx)
			if err != nil {
				return err
			}
			p := out(cmd)
			p.Field("eight-digit", report.EightDigit)
			p.Field("legacy", report.Legacy)
			p.Field("missing", report.Missing)
			p.Field("invalid", len(report.Invalid))
			for _, l := range report.Invalid {
				p.Failure("%s (%s): %q", l.SerialNumber, l.ID, l.DisplayNumber)
			}
			if len(report.Invalid) > 0 {
				return fmt.Errorf("%d certificates carry unparseable display numbers", len(report.Invalid))
			}
			return nil
		},
	}
}

func auditSupersessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "supersession",
		Short: "Check reslab links for dangling targets and loops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			violations, err := a.Certificates.CheckSupersession(ctx)
			if err != nil {
				return err
			}
			p := out(cmd)
			if len(violations) == 0 {
				p.Success("supersession links are consistent")
				return nil
			}
			for _, v := range violations {
				p.Failure("%s (%s): %s", v.SerialNumber, v.CertID, v.Problem)
			}
			return fmt.Errorf("%d supersession violations", len(violations))
		},
	}
}
