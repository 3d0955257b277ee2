// Package blob 提供备份快照和 CSV 导出归档使用的对象存储
// 支持本地文件系统、S3 兼容存储和内存三种驱动
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"powerhouse-manager/internal/config"
)

// Driver 存储驱动类型
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var (
	// ErrNotFound 对象不存在
	ErrNotFound = errors.New("blob: not found")
	// ErrExists 对象已存在（Put 只允许新建）
	ErrExists = errors.New("blob: already exists")
	// ErrUnsupported 驱动不支持该能力
	ErrUnsupported = errors.New("blob: unsupported operation")
)

// PutOptions 写入选项
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info 对象描述
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store 最小的类 S3 接口
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// List 按 key 升序返回前缀匹配的对象
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL 生成临时下载地址，不支持时返回 ErrUnsupported
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// Open 按配置创建对象存储
// driver 为 none 或空时返回 nil, nil，调用方据此关闭备份和归档功能
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case string(DriverMemory):
		return NewMemoryStore(), nil
	case string(DriverFilesystem):
		return NewFSStore(cfg.FSRoot)
	case string(DriverS3):
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
