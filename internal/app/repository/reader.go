package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"gardener_service/internal/app/model"
)

var ErrNotFound = errors.New("not found")

// ReferenceReader は API 向けの読み取り専用クエリです。
type ReferenceReader struct {
	db *gorm.DB
}

func NewReferenceReader(db *gorm.DB) *ReferenceReader {
	return &ReferenceReader{db: db}
}

// ListDiseases は病害の一覧を返します。q が空でなければ名前か学名の部分一致で絞り込みます。
func (r *ReferenceReader) ListDiseases(ctx context.Context, q string) ([]model.Disease, error) {
	tx := r.db.WithContext(ctx).Order(`"ID"`)
	if q = strings.TrimSpace(q); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		tx = tx.Where(`LOWER("Nombre") LIKE ? OR LOWER("NombreCientifico") LIKE ?`, pattern, pattern)
	}
	diseases := []model.Disease{}
	if err := tx.Find(&diseases).Error; err != nil {
		return nil, fmt.Errorf("list diseases: %w", err)
	}
	return diseases, nil
}

func (r *ReferenceReader) GetDisease(ctx context.Context, id uint) (*model.Disease, error) {
	var d model.Disease
	if err := r.db.WithContext(ctx).Take(&d, `"ID" = ?`, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get disease %d: %w", id, err)
	}
	return &d, nil
}

// ListSpecies は品種をガイド付きで返します。
func (r *ReferenceReader) ListSpecies(ctx context.Context) ([]model.Species, error) {
	species := []model.Species{}
	if err := r.db.WithContext(ctx).Preload("Guides").Order(`"ID"`).Find(&species).Error; err != nil {
		return nil, fmt.Errorf("list species: %w", err)
	}
	return species, nil
}

func (r *ReferenceReader) GetSpecies(ctx context.Context, id uint) (*model.Species, error) {
	var sp model.Species
	if err := r.db.WithContext(ctx).Preload("Guides").Take(&sp, `"ID" = ?`, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get species %d: %w", id, err)
	}
	return &sp, nil
}

// Migrate はテーブルを作成します。既存のテーブルにはカラムを追加するだけです。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Disease{}, &model.Species{}, &model.Guide{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
