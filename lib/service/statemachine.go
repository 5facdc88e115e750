package service

// ConnectionState is the service's relay-connection state machine
// (spec.md §4.8.1).
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// InviteState is a PendingInvite's lifecycle (spec.md §4.8.2).
type InviteState int

const (
	InvitePending InviteState = iota
	InviteAccepted
	InviteRejected
)

func (s InviteState) String() string {
	switch s {
	case InvitePending:
		return "pending"
	case InviteAccepted:
		return "accepted"
	case InviteRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// GroupMembershipState tracks whether this identity still belongs to a
// joined group (spec.md §4.8.3).
type GroupMembershipState int

const (
	MemberActive GroupMembershipState = iota
	MemberRemoved
	MemberLeft
)

func (s GroupMembershipState) String() string {
	switch s {
	case MemberActive:
		return "active"
	case MemberRemoved:
		return "removed"
	case MemberLeft:
		return "left"
	default:
		return "unknown"
	}
}
