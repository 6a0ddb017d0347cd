package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/repository"
)

// MaxMediaSize bounds one uploaded file.
const MaxMediaSize = 100 << 20

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrMediaTooLarge    = errors.New("media file too large")
)

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpg": {}, "png": {}, "gif": {}, "webp": {},
}

// ObjectStore puts a public object under key.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type r2Store struct {
	client *s3.Client
	bucket string
}

// NewR2Store talks to Cloudflare R2 through its S3-compatible endpoint.
func NewR2Store(ctx context.Context, cfg config.R2) (ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return &r2Store{client: client, bucket: cfg.BucketName}, nil
}

func (r *r2Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MediaService stores uploads so their public URLs can be used as PublishRequest media.
type MediaService interface {
	Upload(ctx context.Context, userID int64, fileName string, data []byte) (*models.MediaAsset, error)
	List(ctx context.Context, userID int64) ([]*models.MediaAsset, error)
}

type mediaService struct {
	store     ObjectStore
	ma        repository.MediaAssetRepository
	publicURL string
}

func NewMediaService(store ObjectStore, ma repository.MediaAssetRepository, publicURL string) MediaService {
	return &mediaService{
		store:     store,
		ma:        ma,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *mediaService) Upload(ctx context.Context, userID int64, fileName string, data []byte) (*models.MediaAsset, error) {
	if len(data) > MaxMediaSize {
		return nil, ErrMediaTooLarge
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, ErrUnsupportedMedia
	}
	if _, ok := allowedMediaTypes[kind.Extension]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, kind.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := id + "." + kind.Extension

	if err := s.store.Put(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: fileName,
		FileType: kind.MIME.Value,
		FileSize: int64(len(data)),
		FileURL:  s.publicURL + "/" + key,
	}
	if _, err := s.ma.Create(ctx, asset); err != nil {
		return nil, err
	}

	slog.Info("media uploaded", "user_id", userID, "asset_id", asset.ID, "type", asset.FileType)
	return asset, nil
}

func (s *mediaService) List(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	return s.ma.ListByUserID(ctx, userID)
}
