package hierarchy

import (
	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/model"
)

// cursor 指向一次路径解析的各级节点
// 指针直接指向 Tree 内部切片元素，只在下一次结构修改前有效
type cursor struct {
	ph    *model.Powerhouse
	phIdx int
	fd    *model.Feeder
	fdIdx int
	tr    *model.Transformer
	trIdx int
	pl    *model.Pole
	plIdx int
}

func (c cursor) uid(level Level) string {
	switch level {
	case LevelPowerhouse:
		return c.ph.UID
	case LevelFeeder:
		return c.fd.UID
	case LevelTransformer:
		return c.tr.UID
	default:
		return c.pl.UID
	}
}

// childExists 判断 c 所指节点下是否已有名为 name 的 level 级子节点
func (c cursor) childExists(level Level, name string) bool {
	switch level {
	case LevelFeeder:
		for _, f := range c.ph.Feeders {
			if f.Name == name {
				return true
			}
		}
	case LevelTransformer:
		for _, tr := range c.fd.Transformers {
			if tr.Name == name {
				return true
			}
		}
	case LevelPole:
		for _, p := range c.tr.Poles {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// walk 沿 path 解析到 level 为止
func (t *Tree) walk(level Level, path Path) (cursor, error) {
	var c cursor
	if level < LevelPowerhouse || level > LevelPole {
		return c, apperr.Validation("unknown level %d", int(level))
	}

	c.phIdx = t.indexOf(path.Powerhouse)
	if c.phIdx < 0 {
		return c, apperr.NotFound("powerhouse %q not found", path.Powerhouse)
	}
	c.ph = &t.powerhouses[c.phIdx]
	if level == LevelPowerhouse {
		return c, nil
	}

	c.fdIdx = -1
	for i := range c.ph.Feeders {
		if c.ph.Feeders[i].Name == path.Feeder {
			c.fdIdx = i
			break
		}
	}
	if c.fdIdx < 0 {
		return c, apperr.NotFound("feeder %q not found in %s", path.Feeder, path.Powerhouse)
	}
	c.fd = &c.ph.Feeders[c.fdIdx]
	if level == LevelFeeder {
		return c, nil
	}

	c.trIdx = -1
	for i := range c.fd.Transformers {
		if c.fd.Transformers[i].Name == path.Transformer {
			c.trIdx = i
			break
		}
	}
	if c.trIdx < 0 {
		return c, apperr.NotFound("transformer %q not found in %s/%s", path.Transformer, path.Powerhouse, path.Feeder)
	}
	c.tr = &c.fd.Transformers[c.trIdx]
	if level == LevelTransformer {
		return c, nil
	}

	c.plIdx = -1
	for i := range c.tr.Poles {
		if c.tr.Poles[i].Name == path.Pole {
			c.plIdx = i
			break
		}
	}
	if c.plIdx < 0 {
		return c, apperr.NotFound("pole %q not found in %s/%s/%s", path.Pole, path.Powerhouse, path.Feeder, path.Transformer)
	}
	c.pl = &c.tr.Poles[c.plIdx]
	return c, nil
}

// locate 按 UID 查找节点所在的完整路径
func (t *Tree) locate(uid string) (Path, Level, bool) {
	for _, p := range t.powerhouses {
		if p.UID == uid {
			return Path{Powerhouse: p.Name}, LevelPowerhouse, true
		}
		for _, f := range p.Feeders {
			if f.UID == uid {
				return Path{Powerhouse: p.Name, Feeder: f.Name}, LevelFeeder, true
			}
			for _, tr := range f.Transformers {
				if tr.UID == uid {
					return Path{Powerhouse: p.Name, Feeder: f.Name, Transformer: tr.Name}, LevelTransformer, true
				}
				for _, pl := range tr.Poles {
					if pl.UID == uid {
						return Path{Powerhouse: p.Name, Feeder: f.Name, Transformer: tr.Name, Pole: pl.Name}, LevelPole, true
					}
				}
			}
		}
	}
	return Path{}, 0, false
}
