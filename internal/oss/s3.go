package oss

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"genai-image-web/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// 单个对象读取上限，与上传图片限制保持同一量级
const maxObjectBytes = 32 * 1024 * 1024

// S3Client S3 兼容的 OSS 客户端实现
type S3Client struct {
	client   *s3.Client
	endpoint string
	region   string
}

// S3Config S3 客户端配置
type S3Config struct {
	Endpoint  string // OSS 服务端点，例如：s3.amazonaws.com 或 oss-cn-hangzhou.aliyuncs.com
	Region    string // 区域，例如：us-east-1 或 cn-hangzhou
	AccessKey string // Access Key ID，为空时使用默认凭证链
	SecretKey string // Secret Access Key
}

// NewS3Client 创建新的 S3 客户端
func NewS3Client(cfg S3Config) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	// 显式配置了 AK/SK 时使用静态凭证，否则走 AWS 默认凭证链
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint))
		}
	})

	return &S3Client{
		client:   client,
		endpoint: cfg.Endpoint,
		region:   cfg.Region,
	}, nil
}

// GetObject 读取对象内容
func (c *S3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	common.WithFields(map[string]interface{}{
		"bucket":   bucket,
		"key":      key,
		"endpoint": c.endpoint,
	}).Debug("Reading object from OSS")

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"bucket": bucket,
			"key":    key,
		}).Error("Failed to read object from OSS")
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object body: %w", err)
	}
	if len(data) > maxObjectBytes {
		return nil, "", fmt.Errorf("object %s/%s exceeds %d bytes", bucket, key, maxObjectBytes)
	}

	common.WithFields(map[string]interface{}{
		"bucket": bucket,
		"key":    key,
		"size":   len(data),
	}).Debug("Object read from OSS successfully")

	return data, aws.ToString(out.ContentType), nil
}

// ParseObjectURL 解析 s3://bucket/key 形式的地址
func ParseObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid object url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("unsupported object url scheme: %s", u.Scheme)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url must look like s3://bucket/key: %s", rawURL)
	}
	return bucket, key, nil
}

// endpointURL 为不带协议的 endpoint 补全 https://
func endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return fmt.Sprintf("https://%s", endpoint)
}
