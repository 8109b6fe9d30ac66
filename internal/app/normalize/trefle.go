package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gardener_service/internal/app/model"
)

type trefleHit struct {
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
	ImageURL       string `json:"image_url"`
}

type trefleTemperature struct {
	DegC *float64 `json:"deg_c"`
}

type trefleGrowth struct {
	Light               *float64           `json:"light"`
	AtmosphericHumidity *float64           `json:"atmospheric_humidity"`
	GrowthRate          *string            `json:"growth_rate"`
	DaysToHarvest       *float64           `json:"days_to_harvest"`
	MinimumTemperature  *trefleTemperature `json:"minimum_temperature"`
	MaximumTemperature  *trefleTemperature `json:"maximum_temperature"`
}

type trefleDetail struct {
	ImageURL    string `json:"image_url"`
	MainSpecies struct {
		ImageURL string       `json:"image_url"`
		Growth   trefleGrowth `json:"growth"`
	} `json:"main_species"`
}

// Trefle は Trefle の検索結果と詳細から品種レコードを作ります。
// Name は検索に使った名前です。既存の TipoEspecifico 行に一致させるためです。
func Trefle(query string, hit, detail json.RawMessage) (model.ReferenceRecord, error) {
	var h trefleHit
	if err := decode(hit, "trefle search hit", &h); err != nil {
		return model.ReferenceRecord{}, err
	}
	var d trefleDetail
	if len(detail) > 0 && string(detail) != "null" {
		if err := json.Unmarshal(detail, &d); err != nil {
			return model.ReferenceRecord{}, fmt.Errorf("decode trefle detail: %w", err)
		}
	}

	name := strings.TrimSpace(query)
	for _, alt := range []string{h.CommonName, h.ScientificName} {
		if name != "" {
			break
		}
		name = strings.TrimSpace(alt)
	}

	g := d.MainSpecies.Growth
	growthRate := "?"
	if g.GrowthRate != nil && *g.GrowthRate != "" {
		growthRate = *g.GrowthRate
	}

	guide := strings.Join([]string{
		"Luz: " + number(g.Light) + "/10",
		"Humedad: " + number(g.AtmosphericHumidity) + "/10",
		"Crecimiento: " + growthRate,
		"Días hasta cosecha: " + number(g.DaysToHarvest),
	}, "\n")

	rec := model.ReferenceRecord{
		Name:            orDefault(name, model.UnknownName),
		ScientificName:  strings.TrimSpace(h.ScientificName),
		AffectedSpecies: []string{},
		Source:          model.SourceTrefle,
		ImageURL:        firstNonEmpty(h.ImageURL, d.ImageURL, d.MainSpecies.ImageURL),
		Species: &model.SpeciesProfile{
			Info:         fmt.Sprintf("Luz: %s/10 | Crecimiento: %s", number(g.Light), growthRate),
			TempMinIdeal: degC(g.MinimumTemperature),
			TempMaxIdeal: degC(g.MaximumTemperature),
			GuideContent: guide,
		},
	}
	return rec, nil
}

// number は値が無ければ "?" を返します。
func number(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func degC(t *trefleTemperature) *float64 {
	if t == nil || t.DegC == nil {
		return nil
	}
	v := *t.DegC
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
