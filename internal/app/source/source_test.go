package source

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedFetcher struct {
	items []RawItem
	err   error
	calls int
}

func (f *fixedFetcher) Fetch(context.Context) ([]RawItem, error) {
	f.calls++
	return f.items, f.err
}

func TestChainFetch(t *testing.T) {
	a := &fixedFetcher{items: []RawItem{{Kind: KindScrapedPage, Page: &ScrapedPage{URL: "a"}}}}
	b := &fixedFetcher{items: []RawItem{{Kind: KindAPIRecord, API: &APIRecord{Provider: ProviderPerenual}}}}

	items, err := Chain{a, b}.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Label())
	assert.Equal(t, ProviderPerenual, items[1].Label())
}

func TestChainFetchStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	a := &fixedFetcher{err: boom}
	b := &fixedFetcher{}

	items, err := Chain{a, b}.Fetch(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, items)
	assert.Zero(t, b.calls)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "scraped-page", KindScrapedPage.String())
	assert.Equal(t, "api-record", KindAPIRecord.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"perenual key", "https://p.test/api?key=abc&page=2", "https://p.test/api?key=xxx&page=2"},
		{"trefle token", "https://t.test/plants?q=tomate&token=abc", "https://t.test/plants?q=tomate&token=xxx"},
		{"no secret", "https://p.test/api?page=2", "https://p.test/api?page=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redact(tt.in))
		})
	}
}

func TestRedactErr(t *testing.T) {
	err := redactErr(&url.Error{Op: "Get", URL: "https://p.test/api?key=abc", Err: errors.New("timeout")})
	assert.NotContains(t, err.Error(), "abc")
	assert.Contains(t, err.Error(), "timeout")
}

func TestNewClient(t *testing.T) {
	assert.Zero(t, DefaultClient().Timeout, "既定ではタイムアウトを設定しないこと")
	assert.Equal(t, 45*time.Second, NewClient(45*time.Second).Timeout)
}
