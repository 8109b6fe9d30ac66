package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gardener_service/internal/app/logging"
)

// NameSource は品種名の一覧を返します (TipoEspecifico の既存行など)。
type NameSource interface {
	Names(ctx context.Context) ([]string, error)
}

// Trefle は品種名ごとに Trefle の検索 API と詳細 API を呼ぶ Fetcher です。
type Trefle struct {
	client  *http.Client
	baseURL string
	token   string
	seeds   []string
	names   NameSource
}

func NewTrefle(client *http.Client, baseURL, token string, names NameSource, seeds []string) *Trefle {
	if client == nil {
		client = DefaultClient()
	}
	return &Trefle{client: client, baseURL: baseURL, token: token, seeds: seeds, names: names}
}

type trefleSearch struct {
	Data []json.RawMessage `json:"data"`
}

type trefleHit struct {
	Slug string `json:"slug"`
}

type trefleDetail struct {
	Data json.RawMessage `json:"data"`
}

// Fetch は名前一覧の取得に失敗した場合のみエラーを返します。
// 名前ごとの失敗や検索結果なしはログに出してスキップします。
func (t *Trefle) Fetch(ctx context.Context) ([]RawItem, error) {
	if t.token == "" {
		return nil, fmt.Errorf("trefle: %w", ErrMissingAPIKey)
	}
	logging.Startf("品種データを取得しています...")

	var stored []string
	if t.names != nil {
		var err error
		stored, err = t.names.Names(ctx)
		if err != nil {
			return nil, fmt.Errorf("list species names: %w", err)
		}
	}
	names := uniqueFold(append(stored, t.seeds...))
	logging.Infof("品種 %d 件が見つかりました", len(names))

	items := make([]RawItem, 0, len(names))
	for _, name := range names {
		rec, found, err := t.lookup(ctx, name)
		if err != nil {
			logging.Errorf("Error con %s: %v", name, err)
			continue
		}
		if !found {
			logging.Warnf("No se encontró información para: %s", name)
			continue
		}
		items = append(items, RawItem{Kind: KindAPIRecord, API: rec})
	}
	return items, nil
}

func (t *Trefle) lookup(ctx context.Context, name string) (*APIRecord, bool, error) {
	q := url.Values{}
	q.Set("token", t.token)
	q.Set("q", name)

	var search trefleSearch
	if err := getJSON(ctx, t.client, t.baseURL+"/api/v1/plants/search?"+q.Encode(), &search); err != nil {
		return nil, false, err
	}
	if len(search.Data) == 0 {
		return nil, false, nil
	}

	var hit trefleHit
	if err := json.Unmarshal(search.Data[0], &hit); err != nil {
		return nil, false, fmt.Errorf("decode search hit: %w", err)
	}
	if hit.Slug == "" {
		return nil, false, fmt.Errorf("search hit for %q has no slug", name)
	}

	dq := url.Values{}
	dq.Set("token", t.token)
	var detail trefleDetail
	if err := getJSON(ctx, t.client, t.baseURL+"/api/v1/plants/"+url.PathEscape(hit.Slug)+"?"+dq.Encode(), &detail); err != nil {
		return nil, false, err
	}

	return &APIRecord{
		Provider: ProviderTrefle,
		Query:    name,
		Payload:  search.Data[0],
		Detail:   detail.Data,
	}, true, nil
}

// uniqueFold は大文字小文字を無視して重複を除きます。最初に出てきた表記と順序を残します。
func uniqueFold(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
