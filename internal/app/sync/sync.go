// Package sync は取得 -> 正規化 -> 画像の再ホスト -> upsert を 1 件ずつ順番に実行します。
package sync

import (
	"context"
	"fmt"
	"time"

	"gardener_service/internal/app/logging"
	"gardener_service/internal/app/model"
	"gardener_service/internal/app/source"
)

// Normalizer は RawItem を ReferenceRecord に変換します。
type Normalizer func(source.RawItem) (model.ReferenceRecord, error)

// Rehoster は画像を再ホストします。失敗時は nil を返し、エラーは返しません。
type Rehoster interface {
	Rehost(ctx context.Context, sourceURL, folder string) *string
}

// Store は正規化済みのレコードを保存します。
type Store interface {
	Upsert(ctx context.Context, rec model.ReferenceRecord) (model.Outcome, error)
}

// Recorder は実行結果の件数を記録します。
type Recorder interface {
	RecordOutcome(outcome string)
	RecordFetchFailure()
	ObserveRun(d time.Duration)
}

const outcomeError = "error"

// Loader は 1 種類の参照データ (病害・品種) の同期です。
type Loader struct {
	Name        string
	Fetcher     source.Fetcher
	Normalize   Normalizer
	Rehoster    Rehoster // nil の場合、画像は保存しません
	PhotoFolder string
	Store       Store
	Metrics     Recorder // nil 可
}

// Report は 1 回の実行の集計です。
type Report struct {
	Total   int
	Created int
	Updated int
	Failed  int
}

func (r Report) String() string {
	return fmt.Sprintf("total=%d created=%d updated=%d failed=%d", r.Total, r.Created, r.Updated, r.Failed)
}

// Run は取得を 1 回行い、各レコードを取得順に処理します。
// 取得の失敗だけをエラーとして返します (upsert は 1 件も行いません)。
// レコードごとの失敗はログに出して Failed に数え、次のレコードに進みます。
func (l *Loader) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() {
		if l.Metrics != nil {
			l.Metrics.ObserveRun(time.Since(start))
		}
	}()

	logging.Startf("Iniciando sincronización de %s...", l.Name)

	items, err := l.Fetcher.Fetch(ctx)
	if err != nil {
		if l.Metrics != nil {
			l.Metrics.RecordFetchFailure()
		}
		return Report{}, fmt.Errorf("%s: fetch: %w", l.Name, err)
	}

	report := Report{Total: len(items)}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			logging.Warnf("同期を中断しました (%d/%d): %v", i, len(items), err)
			report.Failed += len(items) - i
			break
		}
		outcome, err := l.process(ctx, item)
		if err != nil {
			report.Failed++
			l.record(outcomeError)
			logging.Errorf("Error con %s: %v", describe(i, item), err)
			continue
		}
		switch outcome {
		case model.OutcomeCreated:
			report.Created++
		case model.OutcomeUpdated:
			report.Updated++
		}
		l.record(outcome.String())
	}

	logging.Createdf("Sincronización completada: %s", report)
	return report, nil
}

func (l *Loader) process(ctx context.Context, item source.RawItem) (model.Outcome, error) {
	rec, err := l.Normalize(item)
	if err != nil {
		return 0, fmt.Errorf("normalize: %w", err)
	}

	if rec.ImageURL != "" && l.Rehoster != nil {
		rec.PhotoURL = l.Rehoster.Rehost(ctx, rec.ImageURL, l.PhotoFolder)
	}

	outcome, err := l.Store.Upsert(ctx, rec)
	if err != nil {
		return 0, err
	}
	switch outcome {
	case model.OutcomeCreated:
		logging.Createdf("Insertada: %s", rec.Name)
	case model.OutcomeUpdated:
		logging.Updatedf("Actualizada: %s", rec.Name)
	}
	return outcome, nil
}

func (l *Loader) record(outcome string) {
	if l.Metrics != nil {
		l.Metrics.RecordOutcome(outcome)
	}
}

// describe は正規化前に失敗した場合でもログに出せる識別子を返します。
func describe(i int, item source.RawItem) string {
	return fmt.Sprintf("#%d (%s)", i+1, item.Label())
}
