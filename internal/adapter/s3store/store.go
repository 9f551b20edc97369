package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/adapter/metacache"
	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/port"
)

// Object metadata keys carrying the share-relevant file attributes
const (
	MetaOwnerID  = "owner-id"
	MetaFilename = "filename"
)

// Config contains S3 file store configuration
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// s3API is the subset of the S3 client the store uses
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store serves shared files from an S3 compatible bucket. Objects are keyed
// by prefix + file id; owner and display name travel as object metadata.
type Store struct {
	client s3API
	bucket string
	prefix string
	cache  *metacache.Cache
	logger *zap.Logger
}

// Ensure Store implements port.FileStore
var _ port.FileStore = (*Store)(nil)

// New creates an S3 backed file store. cache may be nil.
func New(ctx context.Context, cfg Config, cache *metacache.Cache, logger *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, domain.NewValidationError("storage.s3.bucket", "is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newWithClient(client, cfg, cache, logger), nil
}

func newWithClient(client s3API, cfg Config, cache *metacache.Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		cache:  cache,
		logger: logger,
	}
}

func (s *Store) key(fileID int64) string {
	return s.prefix + strconv.FormatInt(fileID, 10)
}

// GetFileMetadata returns the metadata of fileID from its object headers
func (s *Store) GetFileMetadata(ctx context.Context, fileID int64) (*domain.FileMetadata, error) {
	if fileID <= 0 {
		return nil, domain.ErrFileNotFound
	}
	if s.cache != nil {
		if meta, ok := s.cache.Get(fileID); ok {
			return meta, nil
		}
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(fileID)),
	})
	if err != nil {
		return nil, s.wrapErr("head object", fileID, err)
	}

	owner, err := strconv.ParseInt(lookupMeta(out.Metadata, MetaOwnerID), 10, 64)
	if err != nil {
		s.logger.Warn("object has no usable owner metadata",
			zap.String("bucket", s.bucket),
			zap.String("key", s.key(fileID)))
		return nil, domain.ErrFileNotFound
	}

	meta := &domain.FileMetadata{
		ID:          fileID,
		OwnerID:     owner,
		Name:        lookupMeta(out.Metadata, MetaFilename),
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		t := out.LastModified.UTC()
		meta.ModifiedAt = &t
	}
	if meta.Name == "" {
		meta.Name = strconv.FormatInt(fileID, 10)
	}

	if s.cache != nil {
		s.cache.Set(meta)
	}
	return meta, nil
}

// ReadFileStream opens the object body of fileID. The caller must close it.
func (s *Store) ReadFileStream(ctx context.Context, fileID int64) (io.ReadCloser, error) {
	if fileID <= 0 {
		return nil, domain.ErrFileNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(fileID)),
	})
	if err != nil {
		return nil, s.wrapErr("get object", fileID, err)
	}
	return out.Body, nil
}

func (s *Store) wrapErr(op string, fileID int64, err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		if s.cache != nil {
			s.cache.Delete(fileID)
		}
		return domain.ErrFileNotFound
	}
	return fmt.Errorf("s3 %s %s: %w", op, s.key(fileID), err)
}

// lookupMeta reads user metadata case-insensitively; S3 compatible servers
// disagree on the casing they return
func lookupMeta(md map[string]string, key string) string {
	if v, ok := md[key]; ok {
		return v
	}
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
