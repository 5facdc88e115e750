package memorystore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGroupRoundTrip(t *testing.T) {
	s := openTestStore(t)

	g := store.Group{MLSGroupID: "g1", NostrGroupID: "n1", Name: "test", Epoch: 0, CreatedAt: time.Now()}
	require.NoError(t, s.PutGroup(g))

	got, err := s.GetGroup("g1")
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Name)

	groups, err := s.ListGroups()
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	require.NoError(t, s.DeleteGroup("g1"))
	_, err = s.GetGroup("g1")
	assert.Error(t, err)
}

func TestGetGroupNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetGroup("missing")
	assert.Error(t, err)
}

func TestMessagesScopedByGroupAndListedForSeed(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutMessage(store.Message{EventID: "e1", GroupID: "g1", Content: "hi", ReceivedAt: time.Now()}))
	require.NoError(t, s.PutMessage(store.Message{EventID: "e2", GroupID: "g2", Content: "yo", ReceivedAt: time.Now()}))

	g1Messages, err := s.ListMessages("g1")
	require.NoError(t, err)
	require.Len(t, g1Messages, 1)
	assert.Equal(t, "hi", g1Messages[0].Content)

	ids, err := s.ListAllMessageEventIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}

func TestPendingInvitesLifecycle(t *testing.T) {
	s := openTestStore(t)

	invite := store.PendingInvite{WelcomeEventID: "w1", Inviter: "npub1", GroupID: "g1", ReceivedAt: time.Now()}
	require.NoError(t, s.PutPendingInvite(invite))

	invites, err := s.ListPendingInvites()
	require.NoError(t, err)
	require.Len(t, invites, 1)

	require.NoError(t, s.DeletePendingInvite("w1"))
	invites, err = s.ListPendingInvites()
	require.NoError(t, err)
	assert.Empty(t, invites)
}

func TestEpochSecretsScopedByGroupAndEpoch(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutEpochSecret("g1", 0, []byte("secret-0")))
	require.NoError(t, s.PutEpochSecret("g1", 1, []byte("secret-1")))
	require.NoError(t, s.PutEpochSecret("g2", 0, []byte("other-group-secret")))

	secrets, err := s.ListEpochSecrets("g1")
	require.NoError(t, err)
	require.Len(t, secrets, 2)
	assert.Equal(t, []byte("secret-0"), secrets[0])
	assert.Equal(t, []byte("secret-1"), secrets[1])

	g2secrets, err := s.ListEpochSecrets("g2")
	require.NoError(t, err)
	require.Len(t, g2secrets, 1)
}

func TestContactsLifecycle(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutContact(store.Contact{PublicIdentifier: "npub1", DisplayName: "Alice"}))
	contacts, err := s.ListContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice", contacts[0].DisplayName)

	require.NoError(t, s.DeleteContact("npub1"))
	contacts, err = s.ListContacts()
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestKeyPackageRecordsList(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutKeyPackageRecord(store.KeyPackageRecord{EventID: "e1", Member: "npub1", PublishedAt: time.Now()}))
	records, err := s.ListKeyPackageRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "npub1", records[0].Member)
}
