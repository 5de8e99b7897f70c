// Package storage talks to the S3 compatible bucket holding product files.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/irsalhamdi/e-commerce-media/config"
	"github.com/sirupsen/logrus"
)

// deleteBatch is the most keys a single DeleteObjects call accepts.
const deleteBatch = 1000

var ErrNotConfigured = errors.New("object store not configured")

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

type Part struct {
	Number int32  `json:"partNumber"`
	ETag   string `json:"etag"`
	Size   int64  `json:"size"`
}

type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
	obs     Observer
	cache   *expirable.LRU[string, []Object]
	log     logrus.FieldLogger
}

func New(cfg config.Storage, obs Observer, log logrus.FieldLogger) (*Client, error) {
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if obs == nil {
		obs = nopObserver{}
	}

	api := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})

	size := cfg.ListCacheSize
	if size <= 0 {
		size = 256
	}

	return &Client{
		api:     api,
		presign: s3.NewPresignClient(api),
		bucket:  cfg.Bucket,
		obs:     obs,
		cache:   expirable.NewLRU[string, []Object](size, nil, cfg.ListCacheTTL),
		log:     log,
	}, nil
}

// track records the duration and outcome of op once the returned func runs.
func (c *Client) track(op string, err *error) func() {
	start := time.Now()
	return func() { c.obs.RecordOperation(op, time.Since(start), *err) }
}

// List returns every object under prefix ordered by key. Results are cached
// until a write touches the prefix or the entry expires.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	if objs, ok := c.cache.Get(prefix); ok {
		return objs, nil
	}

	objs, err := c.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	c.cache.Add(prefix, objs)
	return objs, nil
}

func (c *Client) list(ctx context.Context, prefix string) (objs []Object, err error) {
	defer c.track("list", &err)()

	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		for _, o := range page.Contents {
			objs = append(objs, Object{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}

	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

// Exists reports whether key is present. A missing key is not an error.
func (c *Client) Exists(ctx context.Context, key string) (ok bool, err error) {
	defer c.track("head", &err)()

	_, err = c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %q: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

// SignedGet returns a time limited GET url for key.
func (c *Client) SignedGet(ctx context.Context, key string, ttl time.Duration) (u string, err error) {
	defer c.track("presign", &err)()

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %q: %w", key, err)
	}
	return req.URL, nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (err error) {
	defer c.track("put", &err)()

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting %q: %w", key, err)
	}
	c.obs.RecordUpload(int64(len(data)))
	c.invalidate(key)
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) (err error) {
	defer c.track("delete", &err)()

	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	c.invalidate(key)
	return nil
}

// DeleteAll removes every object under prefix and returns how many were
// deleted.
func (c *Client) DeleteAll(ctx context.Context, prefix string) (int, error) {
	if prefix == "" || prefix == "/" {
		return 0, errors.New("refusing to delete the whole bucket")
	}

	objs, err := c.list(ctx, prefix)
	if err != nil {
		return 0, err
	}
	defer c.invalidate(prefix)

	var n int
	for _, batch := range chunk(objs, deleteBatch) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, o := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(o.Key)}
		}

		start := time.Now()
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		c.obs.RecordOperation("delete_batch", time.Since(start), err)
		if err != nil {
			return n, fmt.Errorf("deleting under %q: %w", prefix, err)
		}

		n += len(batch) - len(out.Errors)
		for _, e := range out.Errors {
			c.log.WithFields(logrus.Fields{
				"key":  aws.ToString(e.Key),
				"code": aws.ToString(e.Code),
			}).Warn("object not deleted")
		}
	}
	return n, nil
}

func chunk(objs []Object, size int) [][]Object {
	var out [][]Object
	for len(objs) > size {
		out = append(out, objs[:size])
		objs = objs[size:]
	}
	if len(objs) > 0 {
		out = append(out, objs)
	}
	return out
}

// invalidate drops cached listings that may contain key.
func (c *Client) invalidate(key string) {
	for _, prefix := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) || strings.HasPrefix(prefix, key) {
			c.cache.Remove(prefix)
		}
	}
}

func (c *Client) CreateMultipart(ctx context.Context, key, contentType string) (id string, err error) {
	defer c.track("multipart_create", &err)()

	out, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("starting multipart upload of %q: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

func (c *Client) UploadPart(ctx context.Context, key, uploadID string, n int32, data []byte) (p Part, err error) {
	defer c.track("multipart_part", &err)()

	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(n),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return Part{}, fmt.Errorf("uploading part %d of %q: %w", n, key, err)
	}
	c.obs.RecordUpload(int64(len(data)))
	return Part{Number: n, ETag: aws.ToString(out.ETag), Size: int64(len(data))}, nil
}

func (c *Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) (err error) {
	defer c.track("multipart_complete", &err)()

	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{ETag: aws.String(p.ETag), PartNumber: aws.Int32(p.Number)}
	}

	_, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("completing multipart upload of %q: %w", key, err)
	}
	c.invalidate(key)
	return nil
}

func (c *Client) AbortMultipart(ctx context.Context, key, uploadID string) (err error) {
	defer c.track("multipart_abort", &err)()

	_, err = c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("aborting multipart upload of %q: %w", key, err)
	}
	return nil
}
