package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replistore/crdb/internal/ids"
)

var syncRepoCmd = &cobra.Command{
	Use:   "sync-repo <repo-id>",
	Short: "Fetch every operation the coordinator holds beyond this replica's frontier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoId, err := ids.ParseRepoId(args[0])
		if err != nil {
			return fmt.Errorf("sync-repo: %w", err)
		}

		// A bare sync always starts from an empty frontier; a long-lived
		// replica would load its own maxOperationIds from local state first.
		resp, err := GetClient().SyncRepo(context.Background(), repoId, nil)
		if err != nil {
			return fmt.Errorf("sync-repo: %w", err)
		}

		fmt.Printf("operations: %d\n", len(resp.Operations))
		for replica, count := range resp.MaxOperationIds {
			fmt.Printf("  replica %d: max operation count %d\n", replica, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncRepoCmd)
}
