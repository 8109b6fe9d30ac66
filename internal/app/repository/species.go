package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gardener_service/internal/app/model"
)

var ErrNoSpeciesProfile = errors.New("record has no species profile")

// SpeciesStore は "TipoEspecifico" と "Guía" を扱います。
type SpeciesStore struct {
	db *gorm.DB
}

func NewSpeciesStore(db *gorm.DB) *SpeciesStore {
	return &SpeciesStore{db: db}
}

// Names は登録済みの品種名を ID 順に返します。
func (s *SpeciesStore) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&model.Species{}).
		Where(`"Nombre" <> ''`).
		Order(`"ID"`).
		Pluck(`"Nombre"`, &names).Error
	if err != nil {
		return nil, fmt.Errorf("list species names: %w", err)
	}
	return names, nil
}

// Upsert は名前が一致する品種を更新し、無ければ品種とガイドを挿入します。
// Foto は現在 NULL の場合だけ埋めます。
func (s *SpeciesStore) Upsert(ctx context.Context, rec model.ReferenceRecord) (model.Outcome, error) {
	if rec.Species == nil {
		return 0, fmt.Errorf("upsert %q: %w", rec.Name, ErrNoSpeciesProfile)
	}
	profile := rec.Species

	var outcome model.Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Species
		err := tx.Where(`LOWER("Nombre") = LOWER(?)`, rec.Name).Order(`"ID"`).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			outcome = model.OutcomeCreated
			return createSpecies(tx, rec)
		case err != nil:
			return fmt.Errorf("select: %w", err)
		}

		outcome = model.OutcomeUpdated
		updates := map[string]any{"Info": profile.Info}
		if profile.TempMinIdeal != nil {
			updates["TempMinIdeal"] = *profile.TempMinIdeal
		}
		if profile.TempMaxIdeal != nil {
			updates["TempMaxIdeal"] = *profile.TempMaxIdeal
		}
		if existing.PhotoURL == nil && rec.PhotoURL != nil {
			updates["Foto"] = *rec.PhotoURL
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("update id %d: %w", existing.ID, err)
		}
		return ensureGuide(tx, existing.ID, rec)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %q: %w", rec.Name, err)
	}
	return outcome, nil
}

func createSpecies(tx *gorm.DB, rec model.ReferenceRecord) error {
	sp := model.Species{
		Name:         rec.Name,
		Info:         rec.Species.Info,
		PhotoURL:     rec.PhotoURL,
		TempMinIdeal: rec.Species.TempMinIdeal,
		TempMaxIdeal: rec.Species.TempMaxIdeal,
		Guides:       []model.Guide{newGuide(rec)},
	}
	if err := tx.Create(&sp).Error; err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// ensureGuide は既存の品種に同じタイトルのガイドが無ければ追加します。
func ensureGuide(tx *gorm.DB, plantID uint, rec model.ReferenceRecord) error {
	var count int64
	if err := tx.Model(&model.Guide{}).
		Where(`"IdPlanta" = ? AND "Título" = ?`, plantID, rec.GuideTitle()).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count guides: %w", err)
	}
	if count > 0 {
		return nil
	}
	g := newGuide(rec)
	g.PlantID = plantID
	if err := tx.Create(&g).Error; err != nil {
		return fmt.Errorf("insert guide: %w", err)
	}
	return nil
}

func newGuide(rec model.ReferenceRecord) model.Guide {
	return model.Guide{
		Title:   rec.GuideTitle(),
		Content: rec.Species.GuideContent,
		Media:   rec.PhotoURL,
	}
}
