package processor

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HORNET-Storage/hornet-messaging/lib/identity"
	"github.com/HORNET-Storage/hornet-messaging/lib/mls"
	"github.com/HORNET-Storage/hornet-messaging/lib/store/memorystore"
)

func newTestProcessor(t *testing.T) (*Processor, *identity.Identity) {
	t.Helper()
	back, err := memorystore.Open()
	require.NoError(t, err)
	t.Cleanup(func() { back.Close() })

	id, err := identity.Generate()
	require.NoError(t, err)

	eng := mls.NewEngine(id, back)
	return NewProcessor(eng, id, nil), id
}

func signedKeyPackageEvent(t *testing.T, author *identity.Identity) *nostr.Event {
	t.Helper()
	kp := mls.KeyPackage{Member: author.PublicIdentifier(), ProtocolVer: "1.0"}
	raw, err := mls.MarshalKeyPackage(kp)
	require.NoError(t, err)

	ev := &nostr.Event{
		PubKey:    author.PublicIdentifier(),
		CreatedAt: nostr.Now(),
		Kind:      KindKeyPackage,
		Content:   hex.EncodeToString(raw),
	}
	require.NoError(t, ev.Sign(author.PrivateKeyHex()))
	return ev
}

func TestHandleEventDeduplicatesByEventID(t *testing.T) {
	p, author := newTestProcessor(t)
	ev := signedKeyPackageEvent(t, author)

	first, err := p.HandleEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, KeyPackageSeen, first.Kind)

	second, err := p.HandleEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, Skipped, second.Kind)
}

func TestMarkProcessedSuppressesSubsequentDelivery(t *testing.T) {
	p, author := newTestProcessor(t)
	ev := signedKeyPackageEvent(t, author)

	p.MarkProcessed(ev.ID)

	outcome, err := p.HandleEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome.Kind)
}

func TestNewProcessorSeedsProcessedSetFromStorage(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	id, err := identity.Generate()
	require.NoError(t, err)
	eng := mls.NewEngine(id, back)

	p := NewProcessor(eng, id, []string{"already-stored-event"})

	ev := &nostr.Event{ID: "already-stored-event", Kind: KindKeyPackage, CreatedAt: nostr.Now()}
	outcome, err := p.HandleEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome.Kind)
}

func TestGiftWrapDeliversInviteAndRetainsWelcomeBody(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	invitee, err := identity.Generate()
	require.NoError(t, err)
	inviter, err := identity.Generate()
	require.NoError(t, err)

	eng := mls.NewEngine(invitee, back)
	p := NewProcessor(eng, invitee, nil)

	welcome := mls.Welcome{
		GroupID:     "group-1",
		GroupName:   "friends",
		Epoch:       0,
		Members:     []string{inviter.PublicIdentifier(), invitee.PublicIdentifier()},
		EpochSecret: []byte("a 32 byte epoch secret value!!!"),
	}
	envelope := mls.WelcomeEnvelope{Inviter: inviter.PublicIdentifier(), Welcome: welcome}

	ephemeral, err := identity.Generate()
	require.NoError(t, err)

	recipientPub := invitee.PublicKey()
	sealed, err := mls.SealGiftWrap(ephemeral, recipientPub, envelope)
	require.NoError(t, err)

	ev := &nostr.Event{
		PubKey:    ephemeral.PublicIdentifier(),
		CreatedAt: nostr.Now(),
		Kind:      KindGiftWrap,
		Tags:      nostr.Tags{{"p", invitee.PublicIdentifier()}},
		Content:   hex.EncodeToString(sealed),
	}
	require.NoError(t, ev.Sign(ephemeral.PrivateKeyHex()))

	outcome, err := p.HandleEvent(ev)
	require.NoError(t, err)
	require.Equal(t, InviteReceived, outcome.Kind)
	assert.Equal(t, "group-1", outcome.Invite.GroupID)
	assert.Equal(t, inviter.PublicIdentifier(), outcome.Invite.Inviter)

	retained, ok := p.WelcomeFor(ev.ID)
	require.True(t, ok)
	assert.Equal(t, welcome.EpochSecret, retained.EpochSecret)
}

func TestGroupMessageEventDecryptsAndIsSkippedOnRedelivery(t *testing.T) {
	back, err := memorystore.Open()
	require.NoError(t, err)
	defer back.Close()

	author, err := identity.Generate()
	require.NoError(t, err)
	eng := mls.NewEngine(author, back)
	p := NewProcessor(eng, author, nil)

	g, _, err := eng.CreateGroup("chat", "", nil, nil, nil)
	require.NoError(t, err)

	ct, err := eng.CreateMessage(g.MLSGroupID, "hi there")
	require.NoError(t, err)
	raw, err := mls.MarshalCiphertext(ct)
	require.NoError(t, err)

	ev := &nostr.Event{
		PubKey:    author.PublicIdentifier(),
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindGroupMessage,
		Content:   hex.EncodeToString(raw),
	}
	require.NoError(t, ev.Sign(author.PrivateKeyHex()))

	outcome, err := p.HandleEvent(ev)
	require.NoError(t, err)
	require.Equal(t, Decrypted, outcome.Kind)
	assert.Equal(t, "hi there", outcome.Message.Content)

	// Simulate the relay delivering the same event a second time.
	again, err := p.HandleEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, Skipped, again.Kind)
}
