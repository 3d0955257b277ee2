package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/blob"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/pkg/util"
)

const (
	backupPrefix = "backups/"
	exportPrefix = "exports/"
)

// BackupService 把替换前的快照和 CSV 导出写入对象存储
// store 为 nil 时备份功能关闭，Save 直接跳过
type BackupService struct {
	store blob.Store
	keep  int
	now   func() time.Time
}

// NewBackupService 创建备份服务
// 参数:
//   - store: 对象存储，可以为 nil
//   - keep: 最多保留的备份份数，<= 0 表示不清理
func NewBackupService(store blob.Store, keep int) *BackupService {
	return &BackupService{store: store, keep: keep, now: time.Now}
}

// Enabled 是否配置了对象存储
func (b *BackupService) Enabled() bool {
	return b != nil && b.store != nil
}

func (b *BackupService) requireEnabled() error {
	if !b.Enabled() {
		return apperr.NotFound("backup storage is not configured")
	}
	return nil
}

// Save 保存一份快照备份
// key 以 UTC 时间开头，按字典序即为时间顺序
func (b *BackupService) Save(ctx context.Context, snap *model.StoredSnapshot, actor, reason string) (blob.Info, error) {
	if !b.Enabled() {
		return blob.Info{}, nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return blob.Info{}, err
	}
	key := fmt.Sprintf("%s%s-%s.json", backupPrefix, b.now().UTC().Format("20060102T150405.000000000Z"), util.GenerateUUID()[:8])
	info, err := b.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"actor":       actor,
			"reason":      reason,
			"users":       fmt.Sprint(len(snap.Users)),
			"powerhouses": fmt.Sprint(len(snap.Powerhouses)),
		},
	})
	if err != nil {
		return blob.Info{}, err
	}
	b.prune(ctx)
	return info, nil
}

// prune 删除超出保留份数的旧备份，失败只记录日志
func (b *BackupService) prune(ctx context.Context) {
	if b.keep <= 0 {
		return
	}
	list, err := b.store.List(ctx, backupPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("list backups for pruning failed")
		return
	}
	for i := 0; i < len(list)-b.keep; i++ {
		if err := b.store.Delete(ctx, list[i].Key); err != nil {
			log.Warn().Err(err).Str("key", list[i].Key).Msg("delete old backup failed")
		}
	}
}

// List 按时间倒序列出备份
func (b *BackupService) List(ctx context.Context) ([]blob.Info, error) {
	if err := b.requireEnabled(); err != nil {
		return nil, err
	}
	list, err := b.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, apperr.Unavailable("list backups", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key > list[j].Key })
	if list == nil {
		list = []blob.Info{}
	}
	return list, nil
}

// Load 读取一份备份
func (b *BackupService) Load(ctx context.Context, key string) (*model.StoredSnapshot, error) {
	if err := b.requireEnabled(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(key, backupPrefix) || strings.Contains(key, "..") {
		return nil, apperr.Validation("invalid backup key %q", key)
	}
	_, rc, err := b.store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.NotFound("backup %q not found", key)
	}
	if err != nil {
		return nil, apperr.Unavailable("read backup", err)
	}
	defer rc.Close()

	var snap model.StoredSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return nil, apperr.Validation("backup %q is corrupt", key)
	}
	return &snap, nil
}

// Archive 把导出文件写入 exports/，驱动支持时附带临时下载地址
func (b *BackupService) Archive(ctx context.Context, name string, r io.Reader, contentType string) (blob.Info, error) {
	if err := b.requireEnabled(); err != nil {
		return blob.Info{}, err
	}
	key := fmt.Sprintf("%s%s-%s", exportPrefix, b.now().UTC().Format("20060102T150405Z"), name)
	info, err := b.store.Put(ctx, key, r, blob.PutOptions{ContentType: contentType})
	if err != nil {
		return blob.Info{}, apperr.Unavailable("archive export", err)
	}
	if url, err := b.store.PresignURL(ctx, key, time.Hour); err == nil {
		info.URL = url
	} else if !errors.Is(err, blob.ErrUnsupported) {
		log.Warn().Err(err).Str("key", key).Msg("presign export failed")
	}
	return info, nil
}
