package normalize

import (
	"encoding/json"
	"strings"

	"github.com/k3a/html2text"

	"gardener_service/internal/app/model"
)

// perenualDisease は pest-disease-list の 1 要素のうち使う項目です。
// scientific_name や description は文字列の場合と配列の場合があります。
type perenualDisease struct {
	CommonName     string          `json:"common_name"`
	Name           string          `json:"name"`
	ScientificName json.RawMessage `json:"scientific_name"`
	Description    json.RawMessage `json:"description"`
	Solution       json.RawMessage `json:"solution"`
	Hosts          []struct {
		Name string `json:"name"`
	} `json:"hosts"`
	Host         []string        `json:"host"`
	Images       []perenualImage `json:"images"`
	DefaultImage *perenualImage  `json:"default_image"`
}

type perenualImage struct {
	OriginalURL string `json:"original_url"`
}

type perenualSection struct {
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
}

// Perenual は Perenual の病害虫 1 件を正規化します。
func Perenual(payload json.RawMessage) (model.ReferenceRecord, error) {
	var d perenualDisease
	if err := decode(payload, "perenual record", &d); err != nil {
		return model.ReferenceRecord{}, err
	}

	name := strings.TrimSpace(d.CommonName)
	if name == "" {
		name = strings.TrimSpace(d.Name)
	}

	rec := model.ReferenceRecord{
		Name:            orDefault(name, model.UnknownName),
		ScientificName:  firstString(d.ScientificName),
		Description:     plainText(sections(d.Description)),
		Solution:        plainText(sections(d.Solution)),
		AffectedSpecies: hosts(d),
		Source:          model.SourcePerenual,
		ImageURL:        imageURL(d),
	}
	return rec, nil
}

// firstString は文字列、または文字列配列の先頭を返します。
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// sections は文字列、または {subtitle, description} の配列を 1 つの文字列にします。
func sections(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []perenualSection
	if err := json.Unmarshal(raw, &list); err != nil {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, sec := range list {
		text := strings.TrimSpace(sec.Description)
		if text == "" {
			continue
		}
		if sub := strings.TrimSpace(sec.Subtitle); sub != "" {
			text = sub + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// plainText は HTML タグを取り除き空白をまとめます。
func plainText(s string) string {
	if s == "" {
		return ""
	}
	return collapse(html2text.HTML2Text(s))
}

func hosts(d perenualDisease) []string {
	names := make([]string, 0, len(d.Hosts)+len(d.Host))
	for _, h := range d.Hosts {
		names = append(names, strings.TrimSpace(h.Name))
	}
	for _, h := range d.Host {
		names = append(names, strings.TrimSpace(h))
	}
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return model.Union(nil, out...)
}

func imageURL(d perenualDisease) string {
	for _, img := range d.Images {
		if u := strings.TrimSpace(img.OriginalURL); u != "" {
			return u
		}
	}
	if d.DefaultImage != nil {
		return strings.TrimSpace(d.DefaultImage.OriginalURL)
	}
	return ""
}
