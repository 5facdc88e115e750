package cli

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group operations",
}

var groupRelays []string
var groupMembers []string
var groupListJSON bool

var groupCreateCmd = &cobra.Command{
	Use:   "create [name] [description]",
	Short: "Create a new group and invite members",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		description := ""
		if len(args) > 1 {
			description = strings.Join(args[1:], " ")
		}

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

		g, err := svc.CreateGroup(ctx, name, description, groupMembers, groupRelays)
		if err != nil {
			return err
		}
		fmt.Printf("created group %q (mls_group_id=%s nostr_group_id=%s)\n", g.Name, g.MLSGroupID, g.NostrGroupID)
		return nil
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List joined groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		groups, err := svc.ListGroups()
		if err != nil {
			return err
		}

		if groupListJSON {
			var json = jsoniter.ConfigCompatibleWithStandardLibrary
			b, err := json.MarshalIndent(groups, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		for _, g := range groups {
			fmt.Printf("%s\t%s\tepoch=%d\tmembers=%d\n", g.MLSGroupID, g.Name, g.Epoch, len(g.Members))
		}
		return nil
	},
}

var groupSendCmd = &cobra.Command{
	Use:   "send [mls_group_id] [message...]",
	Short: "Send a message to a group",
	Args:  cobra.MinimumNArgs(2),
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

		msg, err := svc.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("sent %s\n", msg.EventID)
		return nil
	},
}

var groupInvitesCmd = &cobra.Command{
	Use:   "invites",
	Short: "List pending invites",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		defer svc.Close()

		invites, err := svc.ListPendingInvites()
		if err != nil {
			return err
		}
		for _, i := range invites {
			fmt.Printf("%s\tfrom=%s\tgroup=%s\n", i.WelcomeEventID, i.Inviter, i.GroupName)
		}
		return nil
	},
}

var groupAcceptCmd = &cobra.Command{
	Use:   "accept [welcome_event_id]",
	Short: "Accept a pending invite",
	Args:  cobra.ExactArgs(1),
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

		g, err := svc.AcceptInvite(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("joined %q\n", g.Name)
		return nil
	},
}

func init() {
	groupCreateCmd.Flags().StringSliceVar(&groupMembers, "member", nil, "invited member public identifier (repeatable)")
	groupCreateCmd.Flags().StringSliceVar(&groupRelays, "relay", nil, "relay URL for this group (repeatable)")
	groupListCmd.Flags().BoolVar(&groupListJSON, "json", false, "print groups as JSON")
	groupCmd.AddCommand(groupCreateCmd, groupListCmd, groupSendCmd, groupInvitesCmd, groupAcceptCmd)
}
