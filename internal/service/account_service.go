package service

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/blob"
	"powerhouse-manager/internal/model"
)

// csvHeader 导出文件的表头
const csvHeader = "Powerhouse,Feeder,Transformer,Pole,AccountID,AccountName,Phone,Remark"

// AccountService 账户查询与导出
type AccountService struct {
	snapshots *SnapshotService
	backups   *BackupService
}

// NewAccountService 创建 AccountService 实例
func NewAccountService(snapshots *SnapshotService, backups *BackupService) *AccountService {
	return &AccountService{snapshots: snapshots, backups: backups}
}

// SearchResult 账户查询结果
type SearchResult struct {
	Found   bool           `json:"found"`
	Account *model.Account `json:"account,omitempty"`
}

// Search 在指定电站内按账户 ID 查找
// 参数:
//   - ctx: 上下文
//   - actor: 当前用户，普通用户只能查自己的电站
//   - powerhouse: 电站名称
//   - id: 账户 ID
//
// 返回:
//   - *SearchResult: 电站或账户不存在时 Found 为 false
//   - error: 越权返回 Forbidden，存储不可用返回 StoreUnavailable
func (s *AccountService) Search(ctx context.Context, actor Actor, powerhouse, id string) (*SearchResult, error) {
	if !actor.CanSee(powerhouse) {
		return nil, apperr.Forbidden("user %q cannot search powerhouse %q", actor.Username, powerhouse)
	}
	stored, err := s.snapshots.loadStored(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range stored.Powerhouses {
		if p.Name != powerhouse {
			continue
		}
		for _, a := range p.Accounts {
			owner := a.Powerhouse
			if owner == "" {
				owner = p.Name
			}
			if a.ID == id && owner == powerhouse {
				found := a
				return &SearchResult{Found: true, Account: &found}, nil
			}
		}
	}
	return &SearchResult{Found: false}, nil
}

// ExportCSV 把全部账户写成 CSV
// 电站按名称排序，电站内账户保持存储顺序；Remark 列始终加引号
func (s *AccountService) ExportCSV(ctx context.Context, actor Actor, w io.Writer) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	stored, err := s.snapshots.loadStored(ctx)
	if err != nil {
		return err
	}
	return WriteAccountsCSV(w, stored.Powerhouses)
}

// WriteAccountsCSV 按导出格式写出账户
func WriteAccountsCSV(w io.Writer, powerhouses []model.Powerhouse) error {
	phs := append([]model.Powerhouse(nil), powerhouses...)
	sort.SliceStable(phs, func(i, j int) bool { return phs[i].Name < phs[j].Name })

	bw := bufio.NewWriter(w)
	bw.WriteString(csvHeader + "\n")
	for _, p := range phs {
		for _, a := range p.Accounts {
			owner := a.Powerhouse
			if owner == "" {
				owner = p.Name
			}
			for _, f := range []string{owner, a.Feeder, a.Transformer, a.Pole, a.ID, a.Name, a.Phone} {
				bw.WriteString(csvField(f))
				bw.WriteByte(',')
			}
			bw.WriteString(quote(a.Remark))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// csvField 含分隔符、引号或换行时才加引号
func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ArchiveCSV 导出 CSV 并归档到对象存储
func (s *AccountService) ArchiveCSV(ctx context.Context, actor Actor) (blob.Info, error) {
	if err := requireAdmin(actor); err != nil {
		return blob.Info{}, err
	}
	if !s.backups.Enabled() {
		return blob.Info{}, apperr.NotFound("backup storage is not configured")
	}
	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, actor, &buf); err != nil {
		return blob.Info{}, err
	}
	return s.backups.Archive(ctx, "accounts.csv", &buf, "text/csv")
}
