package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var keyPackageCmd = &cobra.Command{
	Use:   "keypackage",
	Short: "Key package operations",
}

var keyPackagePublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a fresh key package advertising this identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx := context.Background()
		if err := svc.Connect(ctx); err != nil {
			return err
		}
		defer svc.Disconnect()

		if err := svc.PublishKeyPackages(ctx); err != nil {
			return err
		}
		fmt.Println("key package published")
		return nil
	},
}

func init() {
	keyPackageCmd.AddCommand(keyPackagePublishCmd)
}
