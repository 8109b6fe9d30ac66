package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gardener_service/internal/app/model"
	"gardener_service/internal/app/normalize"
	"gardener_service/internal/app/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubFetcher struct {
	items []source.RawItem
	err   error
}

func (f stubFetcher) Fetch(context.Context) ([]source.RawItem, error) { return f.items, f.err }

// memStore は名前で一致を判定するメモリ上の Store です。
type memStore struct {
	rows   []model.Disease
	failOn map[string]bool
	calls  []string
}

func (s *memStore) Upsert(_ context.Context, rec model.ReferenceRecord) (model.Outcome, error) {
	s.calls = append(s.calls, rec.Name)
	if s.failOn[rec.Name] {
		return 0, fmt.Errorf("upsert %q: simulated db error", rec.Name)
	}
	for i, r := range s.rows {
		if strings.EqualFold(r.Name, rec.Name) || strings.EqualFold(r.ScientificName, rec.ScientificName) {
			s.rows[i] = r.Merge(rec)
			return model.OutcomeUpdated, nil
		}
	}
	row := model.NewDisease(rec)
	row.ID = uint(len(s.rows) + 1)
	s.rows = append(s.rows, row)
	return model.OutcomeCreated, nil
}

type stubRehoster struct {
	calls []string
	url   *string
}

func (r *stubRehoster) Rehost(_ context.Context, sourceURL, folder string) *string {
	r.calls = append(r.calls, folder+":"+sourceURL)
	return r.url
}

type countingRecorder struct {
	outcomes      map[string]int
	fetchFailures int
	runs          int
}

func (c *countingRecorder) RecordOutcome(outcome string) { c.outcomes[outcome]++ }
func (c *countingRecorder) RecordFetchFailure() { c.fetchFailures++ }
func (c *countingRecorder) ObserveRun(time.Duration) { c.runs++ }

func page(title string) source.RawItem {
	return source.RawItem{Kind: source.KindScrapedPage, Page: &source.ScrapedPage{Title: title, BaseURL: "https://plantwise.test"}}
}

func TestRunPerRecordIsolation(t *testing.T) {
	items := []source.RawItem{
		page("Uno - A1"), page("Dos - A2"), page("Tres - A3"), page("Cuatro - A4"), page("Cinco - A5"),
	}
	store := &memStore{failOn: map[string]bool{"Tres": true}}
	rec := &countingRecorder{outcomes: map[string]int{}}

	l := &Loader{
		Name:      "enfermedades",
		Fetcher:   stubFetcher{items: items},
		Normalize: normalize.Record,
		Store:     store,
		Metrics:   rec,
	}
	report, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Total: 5, Created: 4, Failed: 1}, report)
	assert.Equal(t, []string{"Uno", "Dos", "Tres", "Cuatro", "Cinco"}, store.calls, "取得順に処理されること")
	require.Len(t, store.rows, 4)
	assert.Equal(t, "Cuatro", store.rows[2].Name)
	assert.Equal(t, 4, rec.outcomes["created"])
	assert.Equal(t, 1, rec.outcomes["error"])
	assert.Equal(t, 1, rec.runs)
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	store := &memStore{}
	rec := &countingRecorder{outcomes: map[string]int{}}
	boom := errors.New("listing unavailable")

	l := &Loader{
		Name:      "enfermedades",
		Fetcher:   stubFetcher{err: boom},
		Normalize: normalize.Record,
		Store:     store,
		Metrics:   rec,
	}
	_, err := l.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.calls, "取得に失敗したら upsert しないこと")
	assert.Equal(t, 1, rec.fetchFailures)
}

func TestRunIsIdempotent(t *testing.T) {
	items := []source.RawItem{page("Roya - Puccinia"), page("Roya - Puccinia")}
	store := &memStore{}
	l := &Loader{Name: "enfermedades", Fetcher: stubFetcher{items: items}, Normalize: normalize.Record, Store: store}

	for i := 0; i < 2; i++ {
		_, err := l.Run(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, store.rows, 1)
	assert.Equal(t, []string{model.SourcePlantwise}, []string(store.rows[0].Sources))
	assert.Equal(t, []string{"Puccinia"}, []string(store.rows[0].AffectedSpecies))
}

func TestRunNormalizeFailureIsSkipped(t *testing.T) {
	items := []source.RawItem{
		{Kind: source.KindAPIRecord, API: &source.APIRecord{Provider: "unknown"}},
		page("Oídio - Erysiphe"),
	}
	store := &memStore{}
	l := &Loader{Name: "enfermedades", Fetcher: stubFetcher{items: items}, Normalize: normalize.Record, Store: store}

	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 2, Created: 1, Failed: 1}, report)
	assert.Equal(t, []string{"Oídio"}, store.calls)
}

func TestRunRehostsImages(t *testing.T) {
	hosted := "https://cdn.test/Fotos/enfermedades/x.jpg"
	rehoster := &stubRehoster{url: &hosted}
	withImage := page("Roya - Puccinia")
	withImage.Page.ImageSrc = "/img/roya.jpg"
	items := []source.RawItem{withImage, page("Oídio - Erysiphe")}

	store := &memStore{}
	l := &Loader{
		Name:        "enfermedades",
		Fetcher:     stubFetcher{items: items},
		Normalize:   normalize.Record,
		Rehoster:    rehoster,
		PhotoFolder: model.DiseasePhotoFolder,
		Store:       store,
	}
	_, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"enfermedades:https://plantwise.test/img/roya.jpg"}, rehoster.calls, "画像が無いレコードは再ホストしないこと")
	require.NotNil(t, store.rows[0].PhotoURL)
	assert.Equal(t, hosted, *store.rows[0].PhotoURL)
	assert.Nil(t, store.rows[1].PhotoURL)
}

func TestRunRehostFailureStillUpserts(t *testing.T) {
	withImage := page("Roya - Puccinia")
	withImage.Page.ImageSrc = "https://img.test/roya.jpg"
	store := &memStore{}
	l := &Loader{
		Name:      "enfermedades",
		Fetcher:   stubFetcher{items: []source.RawItem{withImage}},
		Normalize: normalize.Record,
		Rehoster:  &stubRehoster{},
		Store:     store,
	}
	report, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Nil(t, store.rows[0].PhotoURL)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memStore{}
	l := &Loader{Name: "enfermedades", Fetcher: stubFetcher{items: []source.RawItem{page("A"), page("B")}}, Normalize: normalize.Record, Store: store}

	report, err := l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, store.calls)
}
