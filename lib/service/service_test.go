package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/hornet-messaging/lib/config"
	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg, err := config.NewBuilder().WithMemoryBackend().WithRelays("wss://relay.example").Build()
	require.NoError(t, err)

	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNewGeneratesIdentityWhenNoneConfigured(t *testing.T) {
	svc := newTestService(t)
	assert.NotEmpty(t, svc.Identity().PublicIdentifier())
}

func TestStatusStartsDisconnected(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, Disconnected, svc.Status())
}

func TestAddContactAndListContacts(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.AddContact("npub1alice", "Alice", ""))
	contacts, err := svc.ListContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice", contacts[0].DisplayName)
}

// TestPreflightKeyPackagesRequiresEveryMember exercises spec.md's stale
// key package design note: create_group must fail fast with a
// structured error naming the member, rather than produce an
// undecryptable invite, when no key package is on file for an invitee.
func TestPreflightKeyPackagesRequiresEveryMember(t *testing.T) {
	svc := newTestService(t)

	err := svc.preflightKeyPackages([]string{"npub1missing"})
	require.Error(t, err)

	require.NoError(t, svc.eng.PutKeyPackageRecord(store.KeyPackageRecord{
		EventID: "e1",
		Member:  "npub1present",
	}))
	require.NoError(t, svc.preflightKeyPackages([]string{"npub1present"}))

	err = svc.preflightKeyPackages([]string{"npub1present", "npub1missing"})
	assert.Error(t, err)
}

func TestTwoServicesProduceDistinctIdentities(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)
	assert.NotEqual(t, a.Identity().PublicIdentifier(), b.Identity().PublicIdentifier())
}
