package oss

import (
	"context"
)

// ObjectReader 对象存储只读接口
//
// 上游有时返回 s3:// 形式的图片地址，需要通过对象存储读取原图。
type ObjectReader interface {
	// GetObject 读取对象内容，返回数据与 Content-Type
	GetObject(ctx context.Context, bucket, key string) ([]byte, string, error)
}
