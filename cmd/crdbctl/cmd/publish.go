package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var publishRepoCmd = &cobra.Command{
	Use:   "publish-repo <name>",
	Short: "Create a new repository and print its room credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := GetClient().PublishRepo(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("publish-repo: %w", err)
		}
		fmt.Printf("room name:  %s\n", resp.Credentials.Name)
		fmt.Printf("room token: %s\n", resp.Credentials.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishRepoCmd)
}
