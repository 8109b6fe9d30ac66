package model

// 正規化で使う既定値
const (
	UnknownName        = "Desconocido"
	NoDescriptionText  = "Sin descripción disponible."
	NoSolutionText     = "Sin solución especificada."
	SourcePlantwise    = "plantwiseplusknowledgebank"
	SourcePerenual     = "perenual"
	SourceTrefle       = "trefle"
	DiseasePhotoFolder = "enfermedades"
	SpeciesPhotoFolder = "tipoEspecifico"
)

// ReferenceRecord は取得元 1 件分を正規化した結果です。
//
// ImageURL は取得元の画像 URL で、保存されることはありません。
// 保存されるのは再ホスト後の PhotoURL だけです。
type ReferenceRecord struct {
	Name            string
	ScientificName  string
	Description     string
	Solution        string
	AffectedSpecies []string
	Source          string
	ImageURL        string
	PhotoURL        *string

	// Species は種の取得元 (Trefle) の場合のみ設定されます。
	Species *SpeciesProfile
}

// SpeciesProfile は品種テーブルだけが持つ項目です。
type SpeciesProfile struct {
	Info         string
	TempMinIdeal *float64
	TempMaxIdeal *float64
	GuideContent string
}

// GuideTitle は Guía の Título です。
func (r ReferenceRecord) GuideTitle() string {
	return "Guía de cultivo de " + r.Name
}

// Outcome は upsert がレコードをどう扱ったかです。
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// NewDisease は一致する行が無い場合に挿入する行を作ります。
func NewDisease(rec ReferenceRecord) Disease {
	return Disease{
		Name:            rec.Name,
		ScientificName:  rec.ScientificName,
		Sources:         []string{rec.Source},
		Descriptions:    []string{rec.Description},
		Solutions:       []string{rec.Solution},
		AffectedSpecies: Union(nil, rec.AffectedSpecies...),
		PhotoURL:        rec.PhotoURL,
	}
}

// Merge は既存行に rec をマージした結果を返します。d 自体は変更しません。
//
// 配列は和集合 (既存の順序を維持、完全一致の重複は除外)。
// Foto は既存が NULL の場合のみ新しい値で埋めます (先に入った値が勝つ)。
func (d Disease) Merge(rec ReferenceRecord) Disease {
	merged := d
	merged.Sources = Union(d.Sources, rec.Source)
	merged.Descriptions = Union(d.Descriptions, rec.Description)
	merged.Solutions = Union(d.Solutions, rec.Solution)
	merged.AffectedSpecies = Union(d.AffectedSpecies, rec.AffectedSpecies...)
	if merged.PhotoURL == nil && rec.PhotoURL != nil {
		photo := *rec.PhotoURL
		merged.PhotoURL = &photo
	}
	return merged
}

// Union は existing に add を追加した集合を新しいスライスで返します。
func Union(existing []string, add ...string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, list := range [][]string{existing, add} {
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
