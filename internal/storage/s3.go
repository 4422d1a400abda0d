package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kinship-crm/kinship/pkg/loader"
)

// S3Config locates the bucket. PublicEndpoint is the address browsers use
// for presigned links; it may differ from Endpoint inside a compose network.
type S3Config struct {
	Region         string
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	LinkTTL        time.Duration
}

// S3 is a Bucket on any S3 compatible service using path-style addressing.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	prefix  string
	bucket  string
	linkTTL time.Duration
}

func NewS3(ctx context.Context, c S3Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 bucket name is empty")
	}
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = true
	})

	b := &S3{client: client, bucket: c.Bucket, linkTTL: c.LinkTTL}
	if b.linkTTL <= 0 {
		b.linkTTL = 15 * time.Minute
	}

	// Presigned URLs must be signed for the host the browser will send.
	public := c.PublicEndpoint
	if public == "" {
		public = c.Endpoint
	}
	if public == "" {
		b.presign = s3.NewPresignClient(client)
		return b, nil
	}
	u, err := url.Parse(public)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid public endpoint %q", public)
	}
	b.prefix = strings.TrimSuffix(u.Path, "/")
	b.presign = s3.NewPresignClient(s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(u.Scheme + "://" + u.Host)
		o.UsePathStyle = true
	}))
	return b, nil
}

func (b *S3) Put(ctx context.Context, prefix, name string, data []byte) (string, error) {
	key, err := NewKey(prefix, name)
	if err != nil {
		return "", err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(loader.MimeType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (b *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (b *S3) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// URL presigns a GET for the object, valid for LinkTTL.
func (b *S3) URL(ctx context.Context, key string) (string, error) {
	out, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.linkTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	if b.prefix == "" {
		return out.URL, nil
	}
	signed, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("parse presigned url: %w", err)
	}
	signed.Path = b.prefix + signed.Path
	return signed.String(), nil
}

func (b *S3) Text(ctx context.Context, src loader.Source) ([]byte, error) {
	return b.Get(ctx, src.Path)
}

func (b *S3) Base64(ctx context.Context, src loader.Source) (loader.Base64, error) {
	data, err := b.Get(ctx, src.Path)
	if err != nil {
		return loader.Base64{}, err
	}
	return loader.Encode(data, "", src.Path), nil
}

var _ Bucket = (*S3)(nil)
