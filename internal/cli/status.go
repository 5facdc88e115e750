package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect and print identity/connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Connect(context.Background()); err != nil {
			return err
		}
		defer svc.Disconnect()

		npub, err := svc.Identity().Npub()
		if err != nil {
			return err
		}

		fmt.Printf("identity: %s\n", npub)
		fmt.Printf("state:    %s\n", svc.Status())
		return nil
	},
}
