package mls

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/hornet-messaging/lib/identity"
	"github.com/HORNET-Storage/hornet-messaging/lib/store/memorystore"
	"github.com/HORNET-Storage/hornet-messaging/lib/store/sqlstore"
)

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	return id
}

func TestCreateGroupProducesOneWelcomePerInvitedMember(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	creator := newTestIdentity(t)
	invitee := newTestIdentity(t)
	eng := NewEngine(creator, back)

	g, welcomes, err := eng.CreateGroup("friends", "desc", []string{invitee.PublicIdentifier()}, nil, []string{"wss://relay.example"})
	require.NoError(t, err)

	assert.Equal(t, uint64(0), g.Epoch)
	assert.Contains(t, g.Members, creator.PublicIdentifier())
	assert.Contains(t, g.Members, invitee.PublicIdentifier())
	assert.Len(t, welcomes, 1)

	w, ok := welcomes[invitee.PublicIdentifier()]
	require.True(t, ok)
	assert.Equal(t, g.MLSGroupID, w.GroupID)
	assert.NotEmpty(t, w.EpochSecret)
}

func TestSendAndProcessMessageRoundTrips(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	creator := newTestIdentity(t)
	eng := NewEngine(creator, back)

	g, _, err := eng.CreateGroup("solo", "", nil, nil, nil)
	require.NoError(t, err)

	ct, err := eng.CreateMessage(g.MLSGroupID, "hello world")
	require.NoError(t, err)

	msg, err := eng.ProcessMessage("event-1", time.Now(), ct)
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg.Content)
	assert.Equal(t, g.MLSGroupID, msg.GroupID)

	stored, err := eng.ListMessages(g.MLSGroupID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello world", stored[0].Content)
}

func TestAcceptWelcomeJoinsGroupAndClearsInvite(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	creator := newTestIdentity(t)
	invitee := newTestIdentity(t)
	creatorEngine := NewEngine(creator, back)

	g, welcomes, err := creatorEngine.CreateGroup("team", "", []string{invitee.PublicIdentifier()}, nil, nil)
	require.NoError(t, err)
	w := welcomes[invitee.PublicIdentifier()]

	inviteeBack, err := memorystore.Open()
	require.NoError(t, err)
	defer inviteeBack.Close()
	inviteeEngine := NewEngine(invitee, inviteeBack)

	invite, err := inviteeEngine.ProcessWelcome("welcome-event-1", creator.PublicIdentifier(), w)
	require.NoError(t, err)
	assert.Equal(t, g.MLSGroupID, invite.GroupID)

	pending, err := inviteeEngine.ListPendingWelcomes()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	joined, err := inviteeEngine.AcceptWelcome("welcome-event-1", w)
	require.NoError(t, err)
	assert.Equal(t, g.MLSGroupID, joined.MLSGroupID)

	pending, err = inviteeEngine.ListPendingWelcomes()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestEpochSecretSurvivesRestart exercises the durable backend's
// retention invariant: a fresh Engine opened against the same sqlite
// file still finds the stored message and the group's epoch-0 secret,
// so a message sealed under that epoch still decrypts.
func TestEpochSecretSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.sqlite")
	creator := newTestIdentity(t)

	back1, err := sqlstore.Open(dbPath)
	require.NoError(t, err)

	eng1 := NewEngine(creator, back1)
	g, _, err := eng1.CreateGroup("durable", "", nil, nil, nil)
	require.NoError(t, err)

	ct, err := eng1.CreateMessage(g.MLSGroupID, "persisted message")
	require.NoError(t, err)
	_, err = eng1.ProcessMessage("event-restart", time.Now(), ct)
	require.NoError(t, err)
	require.NoError(t, back1.Close())

	back2, err := sqlstore.Open(dbPath)
	require.NoError(t, err)
	defer back2.Close()

	eng2 := NewEngine(creator, back2)
	messages, err := eng2.ListMessages(g.MLSGroupID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "persisted message", messages[0].Content)

	// The group's epoch secret must also have survived, so a second
	// inbound message sealed under the same epoch still decrypts.
	ct2, err := eng2.CreateMessage(g.MLSGroupID, "second message")
	require.NoError(t, err)
	msg2, err := eng2.ProcessMessage("event-restart-2", time.Now(), ct2)
	require.NoError(t, err)
	assert.Equal(t, "second message", msg2.Content)
}
