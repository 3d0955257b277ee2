package hierarchy

// Binding 账户与层级节点之间基于 UID 的绑定
// PoleUID 为空表示该账户的路径在绑定时就无法解析
type Binding struct {
	PowerhouseUID string
	PoleUID       string
}

// Bindings 与扁平账户索引一一对应
// 只在两次账户增删之间有效：Bind 之后先做结构修改，再调用 Rebind 或 Prune
type Bindings []Binding

// Bind 记录每个账户当前指向的电站和电杆 UID
func (t *Tree) Bind() Bindings {
	out := make(Bindings, len(t.accounts))
	for i, acc := range t.accounts {
		path := Path{Powerhouse: acc.Powerhouse, Feeder: acc.Feeder, Transformer: acc.Transformer, Pole: acc.Pole}
		if c, err := t.walk(LevelPowerhouse, path); err == nil {
			out[i].PowerhouseUID = c.ph.UID
		}
		if c, err := t.walk(LevelPole, path); err == nil {
			out[i].PoleUID = c.pl.UID
		}
	}
	return out
}

// Rebind 按 UID 把节点的当前名称写回账户
// 重命名之后调用，一次性完成所有账户的级联更新
func (t *Tree) Rebind(b Bindings) {
	for i := range t.accounts {
		if i >= len(b) {
			return
		}
		acc := &t.accounts[i]
		if b[i].PoleUID != "" {
			if path, _, ok := t.locate(b[i].PoleUID); ok {
				acc.Powerhouse = path.Powerhouse
				acc.Feeder = path.Feeder
				acc.Transformer = path.Transformer
				acc.Pole = path.Pole
				continue
			}
		}
		if b[i].PowerhouseUID != "" {
			if path, _, ok := t.locate(b[i].PowerhouseUID); ok {
				acc.Powerhouse = path.Powerhouse
			}
		}
	}
}

// Prune 删除绑定节点已经不存在的账户，返回删除数量
// 删除子树之后调用；绑定时就无法解析的账户保持不变
func (t *Tree) Prune(b Bindings) int {
	kept := t.accounts[:0]
	removed := 0
	for i, acc := range t.accounts {
		if i < len(b) && t.orphaned(b[i]) {
			removed++
			continue
		}
		kept = append(kept, acc)
	}
	t.accounts = kept
	return removed
}

func (t *Tree) orphaned(b Binding) bool {
	if b.PowerhouseUID != "" {
		if _, _, ok := t.locate(b.PowerhouseUID); !ok {
			return true
		}
	}
	if b.PoleUID != "" {
		if _, _, ok := t.locate(b.PoleUID); !ok {
			return true
		}
	}
	return false
}

// Locate 按 UID 返回节点当前的路径和层级
func (t *Tree) Locate(uid string) (Path, Level, bool) {
	return t.locate(uid)
}
