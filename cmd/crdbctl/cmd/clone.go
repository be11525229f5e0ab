package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cloneRepoCmd = &cobra.Command{
	Use:   "clone-repo <name>",
	Short: "Join an existing repository by its published name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := GetClient().CloneRepo(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("clone-repo: %w", err)
		}
		fmt.Printf("repo id:    %s\n", resp.RepoId)
		fmt.Printf("replica id: %d\n", resp.ReplicaId)
		fmt.Printf("room name:  %s\n", resp.Credentials.Name)
		fmt.Printf("room token: %s\n", resp.Credentials.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cloneRepoCmd)
}
