// Package repository は参照データのテーブルへの読み書きを行います。
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gardener_service/internal/app/model"
)

// Querier は 1 本の接続で実行するクエリです。*pgxpool.Conn が満たします。
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ConnPool はプールから接続を 1 本借ります。release は必ず呼びます。
type ConnPool interface {
	Acquire(ctx context.Context) (conn Querier, release func(), err error)
}

type pgxConnPool struct {
	pool *pgxpool.Pool
}

func (p pgxConnPool) Acquire(ctx context.Context) (Querier, func(), error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Release, nil
}

const (
	selectDiseaseSQL = `SELECT "ID", "Nombre", COALESCE("NombreCientifico", ''), "Fuente", "Descripcion", "Solucion", "EspeciesComunes", "Foto"
FROM "Enfermedad"
WHERE LOWER("Nombre") = LOWER($1) OR LOWER("NombreCientifico") = LOWER($2)
ORDER BY "ID"
LIMIT 1`

	updateDiseaseSQL = `UPDATE "Enfermedad"
SET "Fuente" = $1, "Descripcion" = $2, "Solucion" = $3, "EspeciesComunes" = $4, "Foto" = $5
WHERE "ID" = $6`

	insertDiseaseSQL = `INSERT INTO "Enfermedad" ("Fuente", "Nombre", "Descripcion", "Solucion", "EspeciesComunes", "NombreCientifico", "Foto")
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING "ID"`
)

// DiseaseStore は "Enfermedad" へのマージ付き upsert を行います。
//
// 一致判定は名前か学名のどちらかが大文字小文字を無視して等しい行です (OR)。
// 学名が同じで名前が違う病害も同じ行にマージされます。
// 読み取りと書き込みは同じトランザクションではありません。同時に 1 つの実行だけを想定しています。
type DiseaseStore struct {
	pool ConnPool
}

func NewDiseaseStore(pool *pgxpool.Pool) *DiseaseStore {
	return &DiseaseStore{pool: pgxConnPool{pool: pool}}
}

// NewDiseaseStoreWithPool は任意の ConnPool を使います (テスト用)。
func NewDiseaseStoreWithPool(pool ConnPool) *DiseaseStore {
	return &DiseaseStore{pool: pool}
}

// Upsert は rec に一致する行があればマージして更新し、無ければ挿入します。
// 接続は 1 件ごとに借りて、どの経路でも返却します。
func (s *DiseaseStore) Upsert(ctx context.Context, rec model.ReferenceRecord) (model.Outcome, error) {
	conn, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("upsert %q: acquire connection: %w", rec.Name, err)
	}
	defer release()

	existing, found, err := findDisease(ctx, conn, rec.Name, rec.ScientificName)
	if err != nil {
		return 0, fmt.Errorf("upsert %q: %w", rec.Name, err)
	}

	if found {
		merged := existing.Merge(rec)
		if _, err := conn.Exec(ctx, updateDiseaseSQL,
			[]string(merged.Sources),
			[]string(merged.Descriptions),
			[]string(merged.Solutions),
			[]string(merged.AffectedSpecies),
			merged.PhotoURL,
			merged.ID,
		); err != nil {
			return 0, fmt.Errorf("upsert %q: update id %d: %w", rec.Name, merged.ID, err)
		}
		return model.OutcomeUpdated, nil
	}

	row := model.NewDisease(rec)
	if err := conn.QueryRow(ctx, insertDiseaseSQL,
		[]string(row.Sources),
		row.Name,
		[]string(row.Descriptions),
		[]string(row.Solutions),
		[]string(row.AffectedSpecies),
		row.ScientificName,
		row.PhotoURL,
	).Scan(&row.ID); err != nil {
		return 0, fmt.Errorf("upsert %q: insert: %w", rec.Name, err)
	}
	return model.OutcomeCreated, nil
}

func findDisease(ctx context.Context, q Querier, name, scientificName string) (model.Disease, bool, error) {
	var (
		d                                         model.Disease
		sources, descriptions, solutions, species []string
	)
	err := q.QueryRow(ctx, selectDiseaseSQL, name, scientificName).Scan(
		&d.ID, &d.Name, &d.ScientificName, &sources, &descriptions, &solutions, &species, &d.PhotoURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Disease{}, false, nil
	}
	if err != nil {
		return model.Disease{}, false, fmt.Errorf("select: %w", err)
	}
	d.Sources = sources
	d.Descriptions = descriptions
	d.Solutions = solutions
	d.AffectedSpecies = species
	return d, true, nil
}
