package criteria

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalid  = errors.New("invalid criteria")
	ErrNotFound = errors.New("criterion not found")
)

type Kind string

const (
	Forbidden Kind = "forbidden"
	Desired   Kind = "desired"
)

type Strictness string

const (
	Low    Strictness = "Low"
	Medium Strictness = "Medium"
	High   Strictness = "High"
)

func (s Strictness) Valid() bool {
	switch s {
	case Low, Medium, High:
		return true
	}
	return false
}

// Criterion - одно правило оценки. Strictness имеет смысл только для forbidden.
type Criterion struct {
	ID         string     `json:"id" yaml:"id"`
	Label      string     `json:"label" yaml:"label"`
	Type       Kind       `json:"type" yaml:"type"`
	Strictness Strictness `json:"strictness,omitempty" yaml:"strictness,omitempty"`
}

// EffectiveStrictness: forbidden без уровня трактуется как Medium.
func (c Criterion) EffectiveStrictness() Strictness {
	if c.Strictness == "" {
		return Medium
	}
	return c.Strictness
}

func (c Criterion) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("%w: criterion %q has empty label", ErrInvalid, c.ID)
	}
	switch c.Type {
	case Forbidden, Desired:
	default:
		return fmt.Errorf("%w: criterion %q has unknown type %q", ErrInvalid, c.ID, c.Type)
	}
	if c.Strictness != "" && !c.Strictness.Valid() {
		return fmt.Errorf("%w: criterion %q has unknown strictness %q", ErrInvalid, c.ID, c.Strictness)
	}
	return nil
}

// Set - упорядоченный список критериев; порядок - порядок отображения.
type Set []Criterion

func (s Set) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, c := range s {
		if err := c.validate(); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalid, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Normalize возвращает копию с обрезанными пробелами; у desired уровень строгости сбрасывается.
func (s Set) Normalize() Set {
	out := make(Set, 0, len(s))
	for _, c := range s {
		c.ID = strings.TrimSpace(c.ID)
		c.Label = strings.TrimSpace(c.Label)
		if c.Type == Desired {
			c.Strictness = ""
		}
		out = append(out, c)
	}
	return out
}

func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

func (s Set) Partition() (forbidden, desired Set) {
	for _, c := range s {
		switch c.Type {
		case Forbidden:
			forbidden = append(forbidden, c)
		case Desired:
			desired = append(desired, c)
		}
	}
	return forbidden, desired
}

func (s Set) Index(id string) int {
	for i, c := range s {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func Defaults() Set {
	return Set{
		{ID: "1", Label: "No strong blur", Type: Forbidden, Strictness: High},
		{ID: "2", Label: "Adequate lighting", Type: Forbidden, Strictness: Medium},
		{ID: "3", Label: "Subject visible and centered", Type: Desired},
		{ID: "4", Label: "Clean background", Type: Desired},
	}
}

// Comprehensive - расширенный набор организации для засева общего хранилища.
func Comprehensive() Set {
	return Set{
		{ID: "1", Label: "Blurry or out of focus", Type: Forbidden, Strictness: Medium},
		{ID: "2", Label: "Poor lighting / Too dark", Type: Forbidden, Strictness: Low},
		{ID: "3", Label: "Negative interactions - angry faces, pulling child", Type: Forbidden, Strictness: High},
		{ID: "4", Label: "Sad expressions", Type: Forbidden, Strictness: Medium},
		{ID: "5", Label: "Rigid posing - staged, standing in lines", Type: Forbidden, Strictness: Medium},
		{ID: "6", Label: "Inappropriate attire or body exposure", Type: Forbidden, Strictness: High},
		{ID: "7", Label: "Untidy background - brooms, garbage, food, mess", Type: Forbidden, Strictness: Medium},
		{ID: "8", Label: "Happy / Smiling expression", Type: Desired},
	}
}
