package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gardener_service/internal/app/config"
	"gardener_service/internal/app/db"
	"gardener_service/internal/app/logging"
	"gardener_service/internal/app/metrics"
	"gardener_service/internal/app/model"
	"gardener_service/internal/app/normalize"
	"gardener_service/internal/app/repository"
	"gardener_service/internal/app/source"
	"gardener_service/internal/app/storage"
	"gardener_service/internal/app/sync"
)

var (
	errMissingAction   = errors.New("実行する処理を指定してください (enfermedades | especies | migrate)")
	errUnknownAction   = errors.New("不明な処理です")
	errUnknownProvider = errors.New("unknown provider")
)

// app はコマンド間で共有する設定です。
type app struct {
	v          *viper.Viper
	cfgFile    string
	cfg        *config.Config
	httpClient *http.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "batch",
		Short:         "参照データ (病害・品種) を外部ソースからデータベースに同期します",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.httpClient = source.NewClient(cfg.HTTP.Timeout)
			logging.SetDebug(cfg.Debug)
			return nil
		},
		// 不明な処理名も usage を表示して終了させるため、引数は RunE で判定します。
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %q", errUnknownAction, args[0])
			}
			return errMissingAction
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "設定ファイル (yaml, json, toml)")
	root.PersistentFlags().Bool("debug", false, "デバッグログを出力します")
	_ = a.v.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))

	root.AddCommand(a.diseasesCmd(), a.speciesCmd(), a.migrateCmd())
	return root
}

func (a *app) diseasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "enfermedades",
		Aliases: []string{"diseases"},
		Short:   "病害データを Plantwise / Perenual から同期します",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.runDiseases(cmd.Context())
		},
	}
	cmd.Flags().StringSlice("providers", nil, "取得元 (plantwise, perenual)")
	cmd.Flags().Int("limit", 0, "Plantwise の詳細ページの上限")
	cmd.Flags().Int("max-pages", 0, "Perenual のページ数の上限")
	_ = a.v.BindPFlag("sync.providers", cmd.Flags().Lookup("providers"))
	_ = a.v.BindPFlag("plantwise.limit", cmd.Flags().Lookup("limit"))
	_ = a.v.BindPFlag("perenual.max_pages", cmd.Flags().Lookup("max-pages"))
	return cmd
}

func (a *app) speciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "especies",
		Aliases: []string{"species"},
		Short:   "品種データを Trefle から同期します",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return a.runSpecies(cmd.Context())
		},
	}
	cmd.Flags().StringSlice("species", nil, "データベースの品種に加えて検索する品種名")
	_ = a.v.BindPFlag("trefle.species", cmd.Flags().Lookup("species"))
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "参照データのテーブルを作成します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			pool, err := db.Connect(cmd.Context(), a.cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			gdb, err := db.OpenGorm(pool, a.cfg.Debug)
			if err != nil {
				return err
			}
			if err := repository.Migrate(gdb); err != nil {
				return err
			}
			logging.Createdf("マイグレーションが完了しました")
			return nil
		},
	}
}

// diseaseFetcher は設定された取得元を順番に実行する Fetcher を作ります。
func (a *app) diseaseFetcher() (source.Fetcher, error) {
	providers := a.cfg.Sync.Providers
	if len(providers) == 0 {
		providers = []string{model.SourcePlantwise}
	}

	var chain source.Chain
	for _, p := range providers {
		switch strings.ToLower(p) {
		case "plantwise", model.SourcePlantwise:
			pw, err := source.NewPlantwise(a.httpClient,
				a.cfg.Plantwise.SearchURL,
				a.cfg.Plantwise.BaseURL,
				a.cfg.Plantwise.Limit,
				source.WithRate(a.cfg.Plantwise.RPS),
			)
			if err != nil {
				return nil, err
			}
			chain = append(chain, pw)
		case source.ProviderPerenual:
			if a.cfg.Perenual.Key == "" {
				return nil, config.ErrMissingPerenual
			}
			chain = append(chain, source.NewPerenual(a.httpClient, a.cfg.Perenual.BaseURL, a.cfg.Perenual.Key, a.cfg.Perenual.MaxPages))
		default:
			return nil, fmt.Errorf("%w: %q", errUnknownProvider, p)
		}
	}
	return chain, nil
}

func (a *app) runDiseases(ctx context.Context) error {
	fetcher, err := a.diseaseFetcher()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	return a.runLoader(ctx, &sync.Loader{
		Name:        "enfermedades",
		Fetcher:     fetcher,
		Normalize:   normalize.Record,
		Rehoster:    a.rehoster(ctx),
		PhotoFolder: model.DiseasePhotoFolder,
		Store:       repository.NewDiseaseStore(pool),
	})
}

func (a *app) runSpecies(ctx context.Context) error {
	if a.cfg.Trefle.Token == "" {
		return config.ErrMissingTrefle
	}

	pool, err := db.Connect(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := a.speciesStore(pool)
	if err != nil {
		return err
	}

	return a.runLoader(ctx, &sync.Loader{
		Name:        "especies",
		Fetcher:     source.NewTrefle(a.httpClient, a.cfg.Trefle.BaseURL, a.cfg.Trefle.Token, store, a.cfg.Trefle.Species),
		Normalize:   normalize.Record,
		Rehoster:    a.rehoster(ctx),
		PhotoFolder: model.SpeciesPhotoFolder,
		Store:       store,
	})
}

func (a *app) speciesStore(pool *pgxpool.Pool) (*repository.SpeciesStore, error) {
	gdb, err := db.OpenGorm(pool, a.cfg.Debug)
	if err != nil {
		return nil, err
	}
	return repository.NewSpeciesStore(gdb), nil
}

// runLoader は 1 回の同期を実行し、メトリクスを Pushgateway に送ります。
func (a *app) runLoader(ctx context.Context, l *sync.Loader) error {
	m, err := metrics.NewSyncMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	l.Metrics = m

	report, runErr := l.Run(ctx)
	if err := m.Push(ctx, a.cfg.Metrics.PushgatewayURL, l.Name); err != nil {
		logging.Warnf("メトリクスを送信できませんでした: %v", err)
	}
	if runErr != nil {
		return runErr
	}
	logging.Infof("%s: %s", l.Name, report)
	return nil
}

// rehoster はストレージが設定されていない場合 nil を返します (画像は保存されません)。
func (a *app) rehoster(ctx context.Context) sync.Rehoster {
	if !a.cfg.Storage.Enabled() {
		logging.Warnf("STORAGE_BUCKET / STORAGE_PUBLIC_URL が未設定のため画像は保存しません")
		return nil
	}
	r, err := storage.New(ctx, a.cfg.Storage, a.httpClient)
	if err != nil {
		logging.Warnf("ストレージを初期化できませんでした。画像は保存しません: %v", err)
		return nil
	}
	return r
}
