// Package config はバッチと API の設定を読み込みます。
//
// 読み込み順: .env (任意) -> 環境変数 -> 設定ファイル (任意) -> デフォルト値。
// コマンドラインフラグは viper にバインドされ、最優先になります。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingDatabase = errors.New("DATABASE_URL または (DB_HOST, DB_USER, DB_PASSWORD, DB_NAME) が設定されていません")
	ErrMissingPerenual = errors.New("PERENUAL_KEY が設定されていません")
	ErrMissingTrefle   = errors.New("TREFLE_TOKEN が設定されていません")
)

// Config はバッチと API が使う設定のすべてです。
type Config struct {
	Debug     bool
	Database  DatabaseConfig
	Storage   StorageConfig
	Plantwise PlantwiseConfig
	Perenual  PerenualConfig
	Trefle    TrefleConfig
	Sync      SyncConfig
	Metrics   MetricsConfig
	API       APIConfig
	HTTP      HTTPConfig
}

type DatabaseConfig struct {
	URL      string
	Host     string
	User     string
	Password string
	Name     string
	Port     int

	MaxConns       int32
	ConnectRetries int
	RetryInterval  time.Duration
}

// StorageConfig は画像の再ホスト先 (S3 互換ストレージ) です。
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
	PathStyle       bool
}

// Enabled は画像のアップロードに必要な設定が揃っているかを返します。
func (s StorageConfig) Enabled() bool {
	return s.Bucket != "" && s.PublicURL != ""
}

type PlantwiseConfig struct {
	SearchURL string
	BaseURL   string
	Limit     int
	RPS       float64
}

type PerenualConfig struct {
	Key      string
	BaseURL  string
	MaxPages int
}

type TrefleConfig struct {
	Token   string
	BaseURL string
	Species []string
}

type SyncConfig struct {
	Providers []string
}

type MetricsConfig struct {
	PushgatewayURL string
}

type APIConfig struct {
	Addr string
}

// HTTPConfig は取得元と画像ダウンロードの HTTP クライアントの設定です。
// Timeout が 0 の場合はタイムアウトを設定しません。
type HTTPConfig struct {
	Timeout time.Duration
}

// DSN は pgx に渡す接続文字列を返します。DATABASE_URL が優先されます。
func (d DatabaseConfig) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" || d.User == "" || d.Password == "" || d.Name == "" {
		return "", ErrMissingDatabase
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(port),
		Path:   "/" + d.Name,
	}
	return u.String(), nil
}

// SetDefaults は viper にデフォルト値と環境変数名を登録します。
func SetDefaults(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("debug", false)

	v.SetDefault("db.port", 5432)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_retries", 10)
	v.SetDefault("db.retry_interval", 5*time.Second)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "Fotos")
	v.SetDefault("storage.path_style", true)

	v.SetDefault("plantwise.search_url", "https://plantwiseplusknowledgebank.org/action/doSearch?SeriesKey=plantwise&PrimaryLanguageFacetField2=es")
	v.SetDefault("plantwise.base_url", "https://plantwiseplusknowledgebank.org")
	v.SetDefault("plantwise.limit", 10)
	v.SetDefault("plantwise.rps", 2.0)

	v.SetDefault("perenual.base_url", "https://perenual.com")
	v.SetDefault("perenual.max_pages", 1)

	v.SetDefault("trefle.base_url", "https://trefle.io")
	v.SetDefault("trefle.species", []string{})

	v.SetDefault("sync.providers", []string{"plantwise"})
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("http.timeout", time.Duration(0))

	// 元のスクリプトで使われていた環境変数名も受け付けます。
	_ = v.BindEnv("trefle.token", "TREFLE_TOKEN", "TOKEN_TREFLE")
	_ = v.BindEnv("database.url", "DATABASE_URL", "DB_URL")
	_ = v.BindEnv("metrics.pushgateway_url", "METRICS_PUSHGATEWAY_URL", "PUSHGATEWAY_URL")
}

// LoadDotEnv は .env を読み込みます。ファイルが無い場合は何もしません。
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load は .env と設定ファイルを読み込み、viper から Config を組み立てます。
// file が空の場合、設定ファイルは読みません。
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return FromViper(v), nil
}

// FromViper は v から Config を組み立てます。ファイルは読みません。
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Debug: v.GetBool("debug"),
		Database: DatabaseConfig{
			URL:            v.GetString("database.url"),
			Host:           v.GetString("db.host"),
			User:           v.GetString("db.user"),
			Password:       v.GetString("db.password"),
			Name:           v.GetString("db.name"),
			Port:           v.GetInt("db.port"),
			MaxConns:       v.GetInt32("db.max_conns"),
			ConnectRetries: v.GetInt("db.connect_retries"),
			RetryInterval:  v.GetDuration("db.retry_interval"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			PublicURL:       strings.TrimRight(v.GetString("storage.public_url"), "/"),
			PathStyle:       v.GetBool("storage.path_style"),
		},
		Plantwise: PlantwiseConfig{
			SearchURL: v.GetString("plantwise.search_url"),
			BaseURL:   strings.TrimRight(v.GetString("plantwise.base_url"), "/"),
			Limit:     v.GetInt("plantwise.limit"),
			RPS:       v.GetFloat64("plantwise.rps"),
		},
		Perenual: PerenualConfig{
			Key:      v.GetString("perenual.key"),
			BaseURL:  strings.TrimRight(v.GetString("perenual.base_url"), "/"),
			MaxPages: v.GetInt("perenual.max_pages"),
		},
		Trefle: TrefleConfig{
			Token:   v.GetString("trefle.token"),
			BaseURL: strings.TrimRight(v.GetString("trefle.base_url"), "/"),
			Species: splitList(v.GetStringSlice("trefle.species")),
		},
		Sync: SyncConfig{
			Providers: splitList(v.GetStringSlice("sync.providers")),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
		},
		API: APIConfig{
			Addr: v.GetString("api.addr"),
		},
		HTTP: HTTPConfig{
			Timeout: v.GetDuration("http.timeout"),
		},
	}
}

// splitList は "a,b" 形式の環境変数と YAML のリストの両方を受け付けます。
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
