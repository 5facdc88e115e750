package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Contact book operations",
}

var contactAddCmd = &cobra.Command{
	Use:   "add [public_identifier] [display_name]",
	Short: "Add a contact",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return svc.AddContact(args[0], name, "")
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		contacts, err := svc.ListContacts()
		if err != nil {
			return err
		}
		for _, c := range contacts {
			fmt.Printf("%s\t%s\n", c.PublicIdentifier, c.DisplayName)
		}
		return nil
	},
}

func init() {
	contactCmd.AddCommand(contactAddCmd, contactListCmd)
}
