// Package logarchive stores local server log archives in S3 compatible
// object storage and hands out presigned download links.
package logarchive

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/casanet/remote-server/internal/netx"
	"github.com/google/uuid"
)

const (
	presignExpiry = 15 * time.Minute
	contentType   = "application/octet-stream"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// Enabled reports whether enough is configured to reach a bucket.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.BaseEndpoint != ""
}

type Archive struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func New(cfg Config) *Archive {
	return &Archive{cfg: cfg, client: &http.Client{Timeout: time.Minute}, now: time.Now}
}

// Key returns a fresh object key for a log archive of mac.
func (a *Archive) Key(mac string) string {
	d := a.now().UTC()
	id := strings.NewReplacer(":", "", "-", "").Replace(strings.ToLower(mac))
	return fmt.Sprintf("logs/%s/%d/%02d/%02d/%v.zip", id, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Store uploads data and returns a presigned URL to download it.
func (a *Archive) Store(ctx context.Context, mac string, data []byte) (string, error) {
	pc, err := a.presignClient(ctx)
	if err != nil {
		return "", fmt.Errorf("error configuring s3: %w", err)
	}

	bucket := a.cfg.Bucket
	key := a.Key(mac)

	put, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("error presigning upload: %w", err)
	}

	if err := netx.PutPresigned(ctx, a.client, put.URL, contentType, data); err != nil {
		return "", fmt.Errorf("error uploading logs: %w", err)
	}

	get, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}

	return get.URL, nil
}

func (a *Archive) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.RootUser,
			a.cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
		o.UsePathStyle = true
	})
	return s3.NewPresignClient(client), nil
}
