package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"gardener_service/internal/app/logging"
)

var ErrMissingAPIKey = errors.New("api key is required")

// APIRecord.Provider の値
const (
	ProviderPerenual = "perenual"
	ProviderTrefle   = "trefle"
)

// perenualPage は pest-disease-list の 1 ページ分です。
type perenualPage struct {
	Data        []json.RawMessage `json:"data"`
	CurrentPage int               `json:"current_page"`
	LastPage    int               `json:"last_page"`
}

// Perenual は Perenual の病害虫 API から取得する Fetcher です。
type Perenual struct {
	client   *http.Client
	baseURL  string
	key      string
	maxPages int
}

// NewPerenual は API の Fetcher を作ります。maxPages は 1 回の実行で取得するページ数の上限です。
func NewPerenual(client *http.Client, baseURL, key string, maxPages int) *Perenual {
	if client == nil {
		client = DefaultClient()
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Perenual{client: client, baseURL: baseURL, key: key, maxPages: maxPages}
}

func (p *Perenual) pageURL(page int) string {
	q := url.Values{}
	q.Set("key", p.key)
	q.Set("page", strconv.Itoa(page))
	return p.baseURL + "/api/pest-disease-list?" + q.Encode()
}

// Fetch はページを順に取得します。どのページの失敗も実行全体の失敗です。
func (p *Perenual) Fetch(ctx context.Context) ([]RawItem, error) {
	if p.key == "" {
		return nil, fmt.Errorf("perenual: %w", ErrMissingAPIKey)
	}
	logging.Startf("Perenual からデータを取得しています...")

	var items []RawItem
	for page := 1; page <= p.maxPages; page++ {
		var body perenualPage
		if err := getJSON(ctx, p.client, p.pageURL(page), &body); err != nil {
			return nil, fmt.Errorf("perenual page %d: %w", page, err)
		}
		for _, raw := range body.Data {
			items = append(items, RawItem{
				Kind: KindAPIRecord,
				API:  &APIRecord{Provider: ProviderPerenual, Payload: raw},
			})
		}
		logging.Debugf("Perenual - ページ %d/%d: %d 件", page, body.LastPage, len(body.Data))
		if body.LastPage <= page || len(body.Data) == 0 {
			break
		}
	}
	logging.Infof("Perenual - %d 件取得しました", len(items))
	return items, nil
}
