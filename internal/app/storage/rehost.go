// Package storage は外部の画像を S3 互換ストレージへ再ホストします。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"gardener_service/internal/app/config"
	"gardener_service/internal/app/logging"
)

const (
	defaultExt         = ".jpg"
	defaultContentType = "image/jpeg"
	// maxImageBytes を超える画像はアップロードしません。
	maxImageBytes = 10 << 20
)

var (
	ErrStorageDisabled = errors.New("storage bucket or public url is not configured")
	ErrEmptyImage      = errors.New("downloaded image is empty")
	ErrImageTooLarge   = errors.New("downloaded image is too large")
)

// Uploader は s3.Client のうち使う部分です。
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Rehoster は画像をダウンロードしてバケットにアップロードし、公開 URL を返します。
type Rehoster struct {
	client    *http.Client
	uploader  Uploader
	bucket    string
	publicURL string
	newName   func() string
}

// New は cfg から S3 クライアントを作ります。
// httpClient はダウンロードと S3 へのリクエストの両方に使います (nil なら既定のクライアント)。
func New(ctx context.Context, cfg config.StorageConfig, httpClient *http.Client) (*Rehoster, error) {
	if !cfg.Enabled() {
		return nil, ErrStorageDisabled
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
	})
	return NewWithUploader(httpClient, client, cfg.Bucket, cfg.PublicURL), nil
}

// NewWithUploader は任意の Uploader で Rehoster を作ります。
func NewWithUploader(httpClient *http.Client, uploader Uploader, bucket, publicURL string) *Rehoster {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Rehoster{
		client:    httpClient,
		uploader:  uploader,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		newName:   func() string { return uuid.NewString() },
	}
}

// Rehost は sourceURL の画像を folder 以下にアップロードして公開 URL を返します。
// 失敗した場合はログに出して nil を返します。呼び出し側はエラーを扱いません。
func (r *Rehoster) Rehost(ctx context.Context, sourceURL, folder string) *string {
	if r == nil {
		return nil
	}
	if strings.TrimSpace(sourceURL) == "" {
		logging.Warnf("画像の URL が空のためアップロードしません (folder=%s)", folder)
		return nil
	}
	public, err := r.rehost(ctx, sourceURL, folder)
	if err != nil {
		logging.Errorf("Error al subir imagen %s: %v", sourceURL, err)
		return nil
	}
	logging.Debugf("画像をアップロードしました: %s", public)
	return &public
}

func (r *Rehoster) rehost(ctx context.Context, sourceURL, folder string) (string, error) {
	body, contentType, err := r.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key := folder + "/" + r.newName() + extension(sourceURL)
	_, err = r.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return r.publicURL + "/" + r.bucket + "/" + key, nil
}

func (r *Rehoster) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	switch {
	case len(body) == 0:
		return nil, "", ErrEmptyImage
	case len(body) > maxImageBytes:
		return nil, "", ErrImageTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return body, contentType, nil
}

// extension は URL のパスから拡張子を取り出します。無い場合は .jpg です。
func extension(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return defaultExt
	}
	return ext
}
