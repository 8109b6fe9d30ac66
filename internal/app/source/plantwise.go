package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"gardener_service/internal/app/logging"
)

// ErrEmptyPage はタイトルも本文も取れなかった詳細ページです。
var ErrEmptyPage = errors.New("empty detail page")

// PageParser はサイトの HTML 構造に依存する部分です。
// サイトの構造が変わった場合はこれを差し替えます。
type PageParser interface {
	// DetailLinks は検索結果ページから詳細ページの URL を返します。
	DetailLinks(doc *goquery.Document, base *url.URL) []string
	// ParseDetail は詳細ページからタイトル・各セクション・画像を取り出します。
	ParseDetail(doc *goquery.Document) (ScrapedPage, error)
}

// PlantwiseParser は Plantwise Knowledge Bank の記事ページ用のパーサーです。
type PlantwiseParser struct {
	LinkSelector      string
	LinkMarker        string
	TitleSelector     string
	ProblemHeading    string
	ManagementHeading string
	ImageSelector     string
}

func DefaultPlantwiseParser() PlantwiseParser {
	return PlantwiseParser{
		LinkSelector:      ".item-title a",
		LinkMarker:        "/openurl",
		TitleSelector:     "h1.article-title",
		ProblemHeading:    "Recognize the problem",
		ManagementHeading: "Management",
		ImageSelector:     "img.article-image",
	}
}

func (p PlantwiseParser) DetailLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seenURLs := make(map[string]bool)

	doc.Find(p.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || !strings.Contains(href, p.LinkMarker) {
			return
		}
		parsed, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logging.Debugf("DetailLinks - href解析失敗: %s, エラー: %v", href, err)
			return
		}
		resolved := base.ResolveReference(parsed)

		// パス末尾のスラッシュだけを削除して重複チェック (クエリはそのまま)
		if len(resolved.Path) > 1 {
			resolved.Path = strings.TrimSuffix(resolved.Path, "/")
			resolved.RawPath = ""
		}
		normalizedURL := resolved.String()
		if seenURLs[normalizedURL] {
			logging.Debugf("DetailLinks - 重複URLのためスキップ: %s", normalizedURL)
			return
		}
		seenURLs[normalizedURL] = true
		links = append(links, normalizedURL)
	})
	return links
}

func (p PlantwiseParser) ParseDetail(doc *goquery.Document) (ScrapedPage, error) {
	page := ScrapedPage{
		Title:      strings.TrimSpace(doc.Find(p.TitleSelector).First().Text()),
		Problem:    sectionText(doc, p.ProblemHeading),
		Management: sectionText(doc, p.ManagementHeading),
	}
	if src, ok := doc.Find(p.ImageSelector).First().Attr("src"); ok {
		page.ImageSrc = strings.TrimSpace(src)
	}
	if page.Title == "" && page.Problem == "" && page.Management == "" {
		return page, ErrEmptyPage
	}
	return page, nil
}

// sectionText は heading を含む h2 から次の h2 までのテキストを返します。
func sectionText(doc *goquery.Document, heading string) string {
	h2 := doc.Find("h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), heading)
	}).First()
	if h2.Length() == 0 {
		return ""
	}
	return h2.NextUntil("h2").Text()
}

// Plantwise は検索結果ページから記事を辿るスクレイピング版の Fetcher です。
type Plantwise struct {
	client    *http.Client
	searchURL string
	baseURL   *url.URL
	limit     int
	parser    PageParser
	limiter   *rate.Limiter
}

type PlantwiseOption func(*Plantwise)

func WithPageParser(p PageParser) PlantwiseOption {
	return func(pw *Plantwise) { pw.parser = p }
}

// WithRate は詳細ページ取得の間隔を rps (1 秒あたりのリクエスト数) に制限します。0 以下は無制限です。
func WithRate(rps float64) PlantwiseOption {
	return func(pw *Plantwise) {
		if rps <= 0 {
			pw.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		pw.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewPlantwise は Plantwise の Fetcher を作ります。limit は 1 回の実行で処理する詳細ページの上限です。
func NewPlantwise(client *http.Client, searchURL, baseURL string, limit int, opts ...PlantwiseOption) (*Plantwise, error) {
	if client == nil {
		client = DefaultClient()
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid plantwise base url %q", baseURL)
	}
	if limit <= 0 {
		limit = 10
	}
	pw := &Plantwise{
		client:    client,
		searchURL: searchURL,
		baseURL:   base,
		limit:     limit,
		parser:    DefaultPlantwiseParser(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(pw)
	}
	return pw, nil
}

// Fetch は検索結果ページを取得し、詳細ページを最大 limit 件まで取得します。
// 検索結果ページの失敗はエラー、詳細ページの失敗はログに出してスキップします。
func (p *Plantwise) Fetch(ctx context.Context) ([]RawItem, error) {
	logging.Startf("Plantwise からデータを取得しています: %s", p.searchURL)

	doc, err := getDocument(ctx, p.client, p.searchURL)
	if err != nil {
		return nil, fmt.Errorf("plantwise search page: %w", err)
	}

	links := p.parser.DetailLinks(doc, p.baseURL)
	logging.Infof("Plantwise - 詳細ページ %d 件 (上限 %d)", len(links), p.limit)
	if len(links) > p.limit {
		links = links[:p.limit]
	}

	items := make([]RawItem, 0, len(links))
	for _, link := range links {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("plantwise rate limiter: %w", err)
		}
		page, err := p.fetchDetail(ctx, link)
		if err != nil {
			logging.Errorf("記事の取得に失敗しました %s: %v", link, err)
			continue
		}
		logging.Infof("📄 取得: %s", page.Title)
		items = append(items, RawItem{Kind: KindScrapedPage, Page: &page})
	}
	return items, nil
}

func (p *Plantwise) fetchDetail(ctx context.Context, link string) (ScrapedPage, error) {
	doc, err := getDocument(ctx, p.client, link)
	if err != nil {
		return ScrapedPage{}, err
	}
	page, err := p.parser.ParseDetail(doc)
	if err != nil {
		return ScrapedPage{}, err
	}
	page.URL = link
	page.BaseURL = p.baseURL.String()
	return page, nil
}
