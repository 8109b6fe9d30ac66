// Package normalize は取得元ごとの RawItem を ReferenceRecord に変換します。
// ここにある関数は I/O を行いません。
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gardener_service/internal/app/model"
	"gardener_service/internal/app/source"
)

var (
	ErrUnknownKind     = errors.New("unknown raw item kind")
	ErrUnknownProvider = errors.New("unknown api provider")
)

// Record は 1 件の RawItem を正規化します。
func Record(item source.RawItem) (model.ReferenceRecord, error) {
	switch item.Kind {
	case source.KindScrapedPage:
		if item.Page == nil {
			return model.ReferenceRecord{}, fmt.Errorf("%w: scraped page without page", ErrUnknownKind)
		}
		return ScrapedPage(*item.Page), nil
	case source.KindAPIRecord:
		if item.API == nil {
			return model.ReferenceRecord{}, fmt.Errorf("%w: api record without payload", ErrUnknownKind)
		}
		switch item.API.Provider {
		case source.ProviderPerenual:
			return Perenual(item.API.Payload)
		case source.ProviderTrefle:
			return Trefle(item.API.Query, item.API.Payload, item.API.Detail)
		default:
			return model.ReferenceRecord{}, fmt.Errorf("%w: %q", ErrUnknownProvider, item.API.Provider)
		}
	default:
		return model.ReferenceRecord{}, fmt.Errorf("%w: %s", ErrUnknownKind, item.Kind)
	}
}

// ScrapedPage は Plantwise の記事ページを正規化します。
// タイトルは "名前 - 学名" の形式です。
func ScrapedPage(p source.ScrapedPage) model.ReferenceRecord {
	name, scientific := splitTitle(p.Title)
	rec := model.ReferenceRecord{
		Name:           orDefault(name, model.UnknownName),
		ScientificName: scientific,
		Description:    orDefault(collapse(p.Problem), model.NoDescriptionText),
		Solution:       orDefault(collapse(p.Management), model.NoSolutionText),
		Source:         model.SourcePlantwise,
		ImageURL:       resolveImage(p.BaseURL, p.ImageSrc),
	}
	if scientific != "" {
		rec.AffectedSpecies = []string{scientific}
	} else {
		rec.AffectedSpecies = []string{}
	}
	return rec
}

func splitTitle(title string) (name, scientific string) {
	parts := strings.Split(title, " - ")
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		scientific = strings.TrimSpace(parts[1])
	}
	return name, scientific
}

// resolveImage は相対パスの画像をサイトのベース URL で絶対 URL にします。
func resolveImage(baseURL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// collapse は連続する空白 (改行・タブを含む) を 1 つのスペースにして前後を削ります。
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// decode は JSON をデコードし、失敗時にどの部分かを付けたエラーを返します。
func decode(raw json.RawMessage, what string, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%s: empty payload", what)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
