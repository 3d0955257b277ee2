// Package hierarchy 实现电站 → 馈线 → 变压器 → 电杆四级层级树，
// 以及挂在电杆上的扁平账户索引
package hierarchy

import (
	"fmt"
	"strings"

	"powerhouse-manager/internal/apperr"
)

// Level 层级
type Level int

const (
	LevelPowerhouse Level = iota
	LevelFeeder
	LevelTransformer
	LevelPole
)

var levelNames = [...]string{"powerhouse", "feeder", "transformer", "pole"}

func (l Level) String() string {
	if l < LevelPowerhouse || l > LevelPole {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel 解析层级名称（不区分大小写）
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return 0, apperr.Validation("unknown level %q", s)
}

// Path 以名称定位节点
// 只需填到目标层级为止，更深的字段被忽略
type Path struct {
	Powerhouse  string
	Feeder      string
	Transformer string
	Pole        string
}

// At 返回指定层级上的名称
func (p Path) At(level Level) string {
	switch level {
	case LevelPowerhouse:
		return p.Powerhouse
	case LevelFeeder:
		return p.Feeder
	case LevelTransformer:
		return p.Transformer
	default:
		return p.Pole
	}
}

// With 返回把 level 上的名称替换为 name 的新路径
func (p Path) With(level Level, name string) Path {
	switch level {
	case LevelPowerhouse:
		p.Powerhouse = name
	case LevelFeeder:
		p.Feeder = name
	case LevelTransformer:
		p.Transformer = name
	default:
		p.Pole = name
	}
	return p
}

func (p Path) String() string {
	parts := []string{p.Powerhouse, p.Feeder, p.Transformer, p.Pole}
	end := len(parts)
	for end > 0 && parts[end-1] == "" {
		end--
	}
	return strings.Join(parts[:end], "/")
}
