package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"certregistry/internal/consignment/models"
	id "certregistry/pkg/domain"
)

func exportCommand() *cobra.Command {
	var (
		consignment string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the consignment export view to stdout",
		Long: `Export writes one row per consignment item, ordered by consignment
number and item number. Without --consignment every consignment is exported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q: use csv or json", format)
			}
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)

			var scope *id.ConsignmentID
			if consignment != "" {
				c, err := a.Consignments.Resolve(ctx, consignment)
				if err != nil {
					return err
				}
				scope = &c.ID
			}
			rows, err := a.Consignments.ExportRows(ctx, scope)
			if err != nil {
				return err
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return models.WriteCSV(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&consignment, "consignment", "", "consignment number or id")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or json")
	return cmd
}
