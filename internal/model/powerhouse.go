package model

// Powerhouse 电站，一棵层级树的根
// UID 是内部使用的稳定标识，对外仍以 Name 作为键
type Powerhouse struct {
	UID      string    `json:"uid,omitempty"`
	Name     string    `json:"name"`
	Feeders  []Feeder  `json:"feeders"`
	Accounts []Account `json:"accounts"`
}

// Feeder 馈线，只属于一个电站
type Feeder struct {
	UID          string        `json:"uid,omitempty"`
	Name         string        `json:"name"`
	Transformers []Transformer `json:"transformers"`
}

// Transformer 变压器，只属于一条馈线
type Transformer struct {
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name"`
	Poles []Pole `json:"poles"`
}

// Pole 电杆，层级的叶子节点，账户按名称引用它
type Pole struct {
	UID  string `json:"uid,omitempty"`
	Name string `json:"name"`
}

// Account 用电账户
// (ID, Powerhouse) 在全局唯一；Feeder/Transformer/Pole 是挂接时的路径名称
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Powerhouse  string `json:"powerhouse"`
	Feeder      string `json:"feeder"`
	Transformer string `json:"transformer"`
	Pole        string `json:"pole"`
	Remark      string `json:"remark,omitempty"`
}

// Clone 深拷贝
func (p Powerhouse) Clone() Powerhouse {
	out := Powerhouse{UID: p.UID, Name: p.Name}
	out.Feeders = make([]Feeder, 0, len(p.Feeders))
	for _, f := range p.Feeders {
		out.Feeders = append(out.Feeders, f.Clone())
	}
	out.Accounts = append(make([]Account, 0, len(p.Accounts)), p.Accounts...)
	return out
}

// Clone 深拷贝
func (f Feeder) Clone() Feeder {
	out := Feeder{UID: f.UID, Name: f.Name, Transformers: make([]Transformer, 0, len(f.Transformers))}
	for _, t := range f.Transformers {
		out.Transformers = append(out.Transformers, t.Clone())
	}
	return out
}

// Clone 深拷贝
func (t Transformer) Clone() Transformer {
	return Transformer{UID: t.UID, Name: t.Name, Poles: append(make([]Pole, 0, len(t.Poles)), t.Poles...)}
}

// ClonePowerhouses 深拷贝整个电站列表
func ClonePowerhouses(in []Powerhouse) []Powerhouse {
	out := make([]Powerhouse, 0, len(in))
	for _, p := range in {
		out = append(out, p.Clone())
	}
	return out
}

// Normalize 把 nil 子序列替换成空序列
// 存储和重新加载后 [] 与 null 不再有差别
func (p *Powerhouse) Normalize() {
	if p.Feeders == nil {
		p.Feeders = []Feeder{}
	}
	if p.Accounts == nil {
		p.Accounts = []Account{}
	}
	for i := range p.Feeders {
		f := &p.Feeders[i]
		if f.Transformers == nil {
			f.Transformers = []Transformer{}
		}
		for j := range f.Transformers {
			if f.Transformers[j].Poles == nil {
				f.Transformers[j].Poles = []Pole{}
			}
		}
	}
}
