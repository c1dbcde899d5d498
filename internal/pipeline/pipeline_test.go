package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/platform/relay"
)

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 3, 10, 14, 30, 12, 0, time.UTC)

	t.Run("daily at 3am", func(t *testing.T) {
		next, err := nextCronTime("0 3 * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("next minute wildcard", func(t *testing.T) {
		next, err := nextCronTime("* * * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 14, 31, 0, 0, time.UTC), next)
	})

	t.Run("first of month", func(t *testing.T) {
		next, err := nextCronTime("0 0 1 * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), next)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := nextCronTime("not a cron", after)
		assert.Error(t, err)
	})
}

type fakeLister struct {
	pages [][]domain.Offer
	calls int
}

func (f *fakeLister) ListOffers(_ context.Context, q relay.ListQuery) ([]domain.Offer, string, error) {
	f.calls++
	if len(f.pages) == 0 {
		return nil, "", nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	next := ""
	if len(f.pages) > 0 {
		next = "cursor"
	}
	return page, next, nil
}

type fakeSink struct {
	got []domain.Offer
}

func (f *fakeSink) HandleOffer(_ context.Context, offer domain.Offer) {
	f.got = append(f.got, offer)
}

func TestOfferScraper_PaginatesAllPages(t *testing.T) {
	lister := &fakeLister{pages: [][]domain.Offer{
		{{ID: "0x1"}, {ID: "0x2"}},
		{{ID: "0x3"}},
	}}
	sink := &fakeSink{}
	s := NewOfferScraper(lister, sink, slog.New(slog.DiscardHandler))

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, lister.calls)
	require.Len(t, sink.got, 3)
	assert.Equal(t, "0x3", sink.got[2].ID)
}
