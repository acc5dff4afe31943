package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"certregistry/internal/census/models"
)

func censusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "census",
		Short: "Inspect and repair population counts",
	}
	cmd.AddCommand(censusRebuildCommand(), censusDriftCommand())
	return cmd
}

func censusRebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every population bucket from certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			if a.DB == nil {
				out(cmd).Warning("no database configured; rebuilding the empty in-memory census")
			}
			buckets, err := a.Census.Rebuild(ctx, a.Certs)
			if err != nil {
				return err
			}
			out(cmd).Success("census rebuilt: %d buckets", buckets)
			return nil
		},
	}
}

func censusDriftCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "Compare stored buckets against certificates without changing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Logger)
			drift, err := a.Census.Drift(ctx, a.Certs)
			if err != nil {
				return err
			}
			p := out(cmd)
			if len(drift) == 0 {
				p.Success("census matches certificates")
				return nil
			}
			keys := make([]models.BucketKey, 0, len(drift))
			for k := range drift {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
			for _, k := range keys {
				p.Warning("%s off by %+d", k, drift[k])
			}
			return fmt.Errorf("%d buckets drifted; run certctl census rebuild", len(drift))
		},
	}
}
