// Package source は外部の参照データ (病害・品種) を取得します。
// 取得したデータは正規化前の RawItem として返します。
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Kind は RawItem のどちらの形が入っているかを表します。
type Kind int

const (
	KindScrapedPage Kind = iota + 1
	KindAPIRecord
)

func (k Kind) String() string {
	switch k {
	case KindScrapedPage:
		return "scraped-page"
	case KindAPIRecord:
		return "api-record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RawItem は ScrapedPage か APIRecord のどちらか一方を持ちます。
type RawItem struct {
	Kind Kind
	Page *ScrapedPage
	API  *APIRecord
}

// ScrapedPage はスクレイピングした詳細ページから取り出した生のテキストです。
type ScrapedPage struct {
	URL        string
	BaseURL    string
	Title      string
	Problem    string
	Management string
	ImageSrc   string
}

// APIRecord は JSON API の 1 要素です。
type APIRecord struct {
	Provider string
	// Query は検索に使った名前です (Trefle のみ)。
	Query   string
	Payload json.RawMessage
	// Detail は詳細 API のレスポンスです (Trefle のみ)。
	Detail json.RawMessage
}

// Label は進捗ログ用の短い識別子です。
func (r RawItem) Label() string {
	switch {
	case r.Page != nil:
		return r.Page.URL
	case r.API != nil && r.API.Query != "":
		return r.API.Provider + ":" + r.API.Query
	case r.API != nil:
		return r.API.Provider
	default:
		return r.Kind.String()
	}
}

// Fetcher は 1 回の実行で取得元から全件を取得します。
// エラーは実行全体の失敗を意味します。個別ページの失敗はログに出してスキップします。
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawItem, error)
}

// Chain は複数の Fetcher を順番に実行し、結果を連結します。
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context) ([]RawItem, error) {
	var items []RawItem
	for _, f := range c {
		got, err := f.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	return items, nil
}

var ErrUnexpectedStatus = errors.New("unexpected status")

const userAgent = "gardener-sync/1.0 (+https://github.com/gardener-service)"

// DefaultClient は取得元への HTTP クライアントです。タイムアウトは設定しません。
func DefaultClient() *http.Client {
	return NewClient(0)
}

// NewClient は timeout を設定したクライアントを返します。0 ならタイムアウト無しです。
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// secretParams はログやエラーに出さないクエリパラメータです。
var secretParams = []string{"key", "token"}

// redact は URL のクエリに含まれる API キーを伏せ字にします。
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "xxx")
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func get(ctx context.Context, client *http.Client, rawURL, accept string) (*http.Response, error) {
	safeURL := redact(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", safeURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", safeURL, redactErr(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w: %d", safeURL, ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp, nil
}

func getDocument(ctx context.Context, client *http.Client, rawURL string) (*goquery.Document, error) {
	resp, err := get(ctx, client, rawURL, "text/html")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", redact(rawURL), err)
	}
	return doc, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, v any) error {
	resp, err := get(ctx, client, rawURL, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	return nil
}

// redactErr は *url.Error に含まれる URL も伏せ字にします。
func redactErr(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: redact(uerr.URL), Err: uerr.Err}
	}
	return err
}
