package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

// Publisher makes a finished render reachable and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// LocalPublisher serves renders from the /renders/ static prefix.
type LocalPublisher struct {
	BaseURL string
}

func (p LocalPublisher) Publish(_ context.Context, localPath string) (string, error) {
	return strings.TrimRight(p.BaseURL, "/") + RendersPrefix + filepath.Base(localPath), nil
}

type S3Config struct {
	Bucket        string
	Region        string
	Prefix        string
	PublicBaseURL string
	UsePathStyle  bool
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads renders to a bucket. The local file is kept so the
// static route keeps working for the retention window.
type S3Publisher struct {
	client objectPutter
	cfg    S3Config
}

func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Publisher{client: client, cfg: cfg}, nil
}

func (p *S3Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := p.key(filepath.Base(localPath))
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.cfg.Bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String("video/mp4"),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	log.Info("Published %s to s3://%s/%s", filepath.Base(localPath), p.cfg.Bucket, key)
	return p.url(key), nil
}

func (p *S3Publisher) key(name string) string {
	return path.Join(strings.Trim(p.cfg.Prefix, "/"), name)
}

func (p *S3Publisher) url(key string) string {
	if p.cfg.PublicBaseURL != "" {
		return strings.TrimRight(p.cfg.PublicBaseURL, "/") + "/" + key
	}
	if p.cfg.UsePathStyle || p.cfg.Region == "" {
		return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", p.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}
