package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HORNET-Storage/hornet-messaging/lib/relay"
)

func TestBuildFiltersAlwaysIncludesGiftWrapForSelf(t *testing.T) {
	m := NewManager(relay.NewClient(nil), "npub1self")

	filters := m.buildFilters()
	assert.Len(t, filters, 1)
	assert.Equal(t, []int{KindGiftWrap}, filters[0].Kinds)
	assert.Equal(t, []string{"npub1self"}, filters[0].Tags["p"])
}

func TestBuildFiltersAddsGroupMessageFilterOnceJoined(t *testing.T) {
	m := NewManager(relay.NewClient(nil), "npub1self")
	m.groupIDs["ngroup1"] = true
	m.groupIDs["ngroup2"] = true

	filters := m.buildFilters()
	assert.Len(t, filters, 2)

	groupFilter := filters[1]
	assert.ElementsMatch(t, []int{KindGroupMessage, KindGroupEvolution}, groupFilter.Kinds)
	assert.ElementsMatch(t, []string{"ngroup1", "ngroup2"}, groupFilter.Tags["h"])
}
