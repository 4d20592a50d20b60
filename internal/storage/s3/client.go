package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"sharebox/internal/storage"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultChunkSize = 5 * 1024 * 1024 // 5MB, минимальный размер части в S3
)

// api: используемое подмножество *s3.Client
type api interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Client: хранилище содержимого файлов в S3-совместимом бакете
type Client struct {
	client    api
	bucket    string
	chunkSize int64
}

var _ storage.BlobStore = (*Client)(nil)

// NewClient создает клиента и проверяет доступ к бакету
func NewClient(ctx context.Context, conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.endpoint()),
		Region:           conf.region(),
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     conf.Endpoint != "",
	})

	c := newClient(client, conf.Bucket)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return c, nil
}

func newClient(client api, bucket string) *Client {
	return &Client{
		client:    client,
		bucket:    bucket,
		chunkSize: defaultChunkSize,
	}
}

// Put загружает объект. Большие объекты уходят загрузкой по частям,
// чтобы не держать файл целиком в памяти.
func (c *Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	if size >= 0 && size <= c.chunkSize {
		buf := bytes.NewBuffer(make([]byte, 0, size))
		if _, err := io.Copy(buf, r); err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(buf.Bytes()),
			ContentLength: aws.Int64(int64(buf.Len())),
			ContentType:   contentTypeOrNil(contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to upload file to S3: %w", err)
		}
		return nil
	}

	return c.putMultipart(ctx, key, r, contentType)
}

func (c *Client) putMultipart(ctx context.Context, key string, r io.Reader, contentType string) error {
	created, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: contentTypeOrNil(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	abort := func(cause error) error {
		// Отмена не должна зависеть от уже отменённого контекста запроса
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()

		_, err := c.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if err != nil {
			log.Printf("[S3] failed to abort multipart upload %s: %v", key, err)
		}
		return cause
	}

	var parts []types.CompletedPart
	chunk := make([]byte, c.chunkSize)
	for partNumber := int32(1); ; partNumber++ {
		n, readErr := io.ReadFull(r, chunk)
		if n > 0 {
			out, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(c.bucket),
				Key:        aws.String(key),
				PartNumber: aws.Int32(partNumber),
				UploadId:   uploadID,
				Body:       bytes.NewReader(chunk[:n]),
			})
			if err != nil {
				return abort(fmt.Errorf("failed to upload part %d: %w", partNumber, err))
			}
			parts = append(parts, types.CompletedPart{
				ETag:       out.ETag,
				PartNumber: aws.Int32(partNumber),
			})
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return abort(fmt.Errorf("failed to read file: %w", readErr))
		}
	}

	_, err = c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("failed to complete multipart upload: %w", err))
	}

	log.Printf("[S3] uploaded %s in %d parts", key, len(parts))
	return nil
}

// Get открывает поток объекта
func (c *Client) Get(ctx context.Context, key string) (storage.Object, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return storage.NewObject(result.Body, aws.ToInt64(result.ContentLength), aws.ToString(result.ContentType)), nil
}

// Delete удаляет объект; S3 не возвращает ошибку для отсутствующего ключа
func (c *Client) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func contentTypeOrNil(contentType string) *string {
	if contentType == "" {
		return nil
	}
	return aws.String(contentType)
}
