package hierarchy

import (
	"strings"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/pkg/util"
)

// Outcome UpsertAccount 的结果
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
)

// AccountFields 账户的可变字段
type AccountFields struct {
	Name        string
	Phone       string
	Feeder      string
	Transformer string
	Pole        string
	Remark      string
}

// Tree 内存中的层级树
// powerhouses 内嵌的 Accounts 始终为空，账户统一保存在扁平索引 accounts 中，
// 需要推送时通过 Embed 重新嵌入
type Tree struct {
	powerhouses []model.Powerhouse
	accounts    []model.Account
}

// New 从快照中的电站列表构建层级树
// 内嵌账户被展开到扁平索引；缺失或重复的 UID 会重新生成
func New(powerhouses []model.Powerhouse) *Tree {
	t := &Tree{powerhouses: make([]model.Powerhouse, 0, len(powerhouses))}
	for _, p := range powerhouses {
		cp := p.Clone()
		for _, acc := range cp.Accounts {
			if acc.Powerhouse == "" {
				acc.Powerhouse = cp.Name
			}
			t.accounts = append(t.accounts, acc)
		}
		cp.Normalize()
		cp.Accounts = nil
		t.powerhouses = append(t.powerhouses, cp)
	}
	t.ensureUIDs()
	return t
}

func (t *Tree) ensureUIDs() {
	seen := make(map[string]bool)
	fix := func(uid *string) {
		if *uid == "" || seen[*uid] {
			*uid = util.NewUID()
		}
		seen[*uid] = true
	}
	for i := range t.powerhouses {
		p := &t.powerhouses[i]
		fix(&p.UID)
		for j := range p.Feeders {
			f := &p.Feeders[j]
			fix(&f.UID)
			for k := range f.Transformers {
				tr := &f.Transformers[k]
				fix(&tr.UID)
				for m := range tr.Poles {
					fix(&tr.Poles[m].UID)
				}
			}
		}
	}
}

// Clone 深拷贝
func (t *Tree) Clone() *Tree {
	return &Tree{
		powerhouses: model.ClonePowerhouses(t.powerhouses),
		accounts:    append([]model.Account(nil), t.accounts...),
	}
}

// Accounts 返回扁平账户索引的副本
func (t *Tree) Accounts() []model.Account {
	return append([]model.Account(nil), t.accounts...)
}

// PowerhouseNames 按树中顺序返回电站名称
func (t *Tree) PowerhouseNames() []string {
	names := make([]string, 0, len(t.powerhouses))
	for _, p := range t.powerhouses {
		names = append(names, p.Name)
	}
	return names
}

// Powerhouse 返回指定电站（含嵌入账户）的副本
func (t *Tree) Powerhouse(name string) (model.Powerhouse, bool) {
	for _, p := range t.powerhouses {
		if p.Name == name {
			return t.embedOne(p), true
		}
	}
	return model.Powerhouse{}, false
}

// Embed 按 account.powerhouse == powerhouse.name 重建每个电站的 accounts
// 每次推送前必须调用，保证内嵌和扁平两份数据一致
func (t *Tree) Embed() []model.Powerhouse {
	out := make([]model.Powerhouse, 0, len(t.powerhouses))
	for _, p := range t.powerhouses {
		out = append(out, t.embedOne(p))
	}
	return out
}

func (t *Tree) embedOne(p model.Powerhouse) model.Powerhouse {
	cp := p.Clone()
	cp.Accounts = []model.Account{}
	for _, acc := range t.accounts {
		if acc.Powerhouse == p.Name {
			cp.Accounts = append(cp.Accounts, acc)
		}
	}
	return cp
}

// FindAccount 在指定电站内按账户 ID 查找
func (t *Tree) FindAccount(powerhouse, id string) (model.Account, bool) {
	for _, acc := range t.accounts {
		if acc.Powerhouse == powerhouse && acc.ID == id {
			return acc, true
		}
	}
	return model.Account{}, false
}

// NodeUID 返回节点的稳定标识
func (t *Tree) NodeUID(level Level, path Path) (string, error) {
	c, err := t.walk(level, path)
	if err != nil {
		return "", err
	}
	return c.uid(level), nil
}

// AddNode 在 parent 下追加一个空的子节点
// level 为 LevelPowerhouse 时 parent 被忽略
// 返回:
//   - string: 新节点的 UID
//   - error: 名称为空或与同级重名返回参数错误，父节点不存在返回 NotFound
func (t *Tree) AddNode(level Level, parent Path, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("%s name must not be empty", level)
	}
	uid := util.NewUID()

	if level == LevelPowerhouse {
		if t.indexOf(name) >= 0 {
			return "", apperr.Validation("powerhouse %q already exists", name)
		}
		t.powerhouses = append(t.powerhouses, model.Powerhouse{
			UID: uid, Name: name, Feeders: []model.Feeder{},
		})
		return uid, nil
	}

	c, err := t.walk(level-1, parent)
	if err != nil {
		return "", err
	}
	if c.childExists(level, name) {
		return "", apperr.Validation("%s %q already exists under %s", level, name, parent.String())
	}
	switch level {
	case LevelFeeder:
		c.ph.Feeders = append(c.ph.Feeders, model.Feeder{UID: uid, Name: name, Transformers: []model.Transformer{}})
	case LevelTransformer:
		c.fd.Transformers = append(c.fd.Transformers, model.Transformer{UID: uid, Name: name, Poles: []model.Pole{}})
	case LevelPole:
		c.tr.Poles = append(c.tr.Poles, model.Pole{UID: uid, Name: name})
	default:
		return "", apperr.Validation("unknown level %d", int(level))
	}
	return uid, nil
}

// RenameNode 原地修改节点名称
// 不负责把新名称传播到用户和账户，调用方需要配合 Bind / Rebind
func (t *Tree) RenameNode(level Level, path Path, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return apperr.Validation("%s name must not be empty", level)
	}
	c, err := t.walk(level, path)
	if err != nil {
		return err
	}
	if path.At(level) == newName {
		return nil
	}

	if level == LevelPowerhouse {
		if t.indexOf(newName) >= 0 {
			return apperr.Validation("powerhouse %q already exists", newName)
		}
		c.ph.Name = newName
		return nil
	}

	parent, _ := t.walk(level-1, path)
	if parent.childExists(level, newName) {
		return apperr.Validation("%s %q already exists under %s", level, newName, path.With(level, "").String())
	}
	switch level {
	case LevelFeeder:
		c.fd.Name = newName
	case LevelTransformer:
		c.tr.Name = newName
	case LevelPole:
		c.pl.Name = newName
	}
	return nil
}

// DeleteNode 删除节点及其整棵子树
// 账户不随之删除，调用方需要配合 Bind / Prune
func (t *Tree) DeleteNode(level Level, path Path) error {
	c, err := t.walk(level, path)
	if err != nil {
		return err
	}
	switch level {
	case LevelPowerhouse:
		t.powerhouses = append(t.powerhouses[:c.phIdx], t.powerhouses[c.phIdx+1:]...)
	case LevelFeeder:
		c.ph.Feeders = append(c.ph.Feeders[:c.fdIdx], c.ph.Feeders[c.fdIdx+1:]...)
	case LevelTransformer:
		c.fd.Transformers = append(c.fd.Transformers[:c.trIdx], c.fd.Transformers[c.trIdx+1:]...)
	case LevelPole:
		c.tr.Poles = append(c.tr.Poles[:c.plIdx], c.tr.Poles[c.plIdx+1:]...)
	}
	return nil
}

// UpsertAccount 按 (id, powerhouse) 新增或更新账户
// id、name、phone 必填，feeder / transformer / pole 必须全部选择且在该电站内存在
func (t *Tree) UpsertAccount(id, powerhouse string, f AccountFields) (Outcome, error) {
	id = strings.TrimSpace(id)
	util.TrimAll(&f.Name, &f.Phone, &f.Feeder, &f.Transformer, &f.Pole)
	if id == "" || f.Name == "" || f.Phone == "" {
		return "", apperr.Validation("account id, name and phone are required")
	}
	if f.Feeder == "" || f.Transformer == "" || f.Pole == "" {
		return "", apperr.Validation("feeder, transformer and pole must all be selected")
	}
	if t.indexOf(powerhouse) < 0 {
		return "", apperr.NotFound("powerhouse %q not found", powerhouse)
	}
	path := Path{Powerhouse: powerhouse, Feeder: f.Feeder, Transformer: f.Transformer, Pole: f.Pole}
	if _, err := t.walk(LevelPole, path); err != nil {
		return "", apperr.Validation("pole %s does not exist", path.String())
	}

	for i := range t.accounts {
		acc := &t.accounts[i]
		if acc.ID == id && acc.Powerhouse == powerhouse {
			acc.Name = f.Name
			acc.Phone = f.Phone
			acc.Feeder = f.Feeder
			acc.Transformer = f.Transformer
			acc.Pole = f.Pole
			acc.Remark = f.Remark
			return Updated, nil
		}
	}
	t.accounts = append(t.accounts, model.Account{
		ID:          id,
		Name:        f.Name,
		Phone:       f.Phone,
		Powerhouse:  powerhouse,
		Feeder:      f.Feeder,
		Transformer: f.Transformer,
		Pole:        f.Pole,
		Remark:      f.Remark,
	})
	return Created, nil
}

// RemoveAccounts 删除指定电站的全部账户，返回删除数量
func (t *Tree) RemoveAccounts(powerhouse string) int {
	kept := t.accounts[:0]
	for _, acc := range t.accounts {
		if acc.Powerhouse != powerhouse {
			kept = append(kept, acc)
		}
	}
	removed := len(t.accounts) - len(kept)
	t.accounts = kept
	return removed
}

func (t *Tree) indexOf(name string) int {
	for i, p := range t.powerhouses {
		if p.Name == name {
			return i
		}
	}
	return -1
}
