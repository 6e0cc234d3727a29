// Package koanf adapts the koanf library to host configuration.
// https://github.com/knadh/koanf
package koanf

import (
	"strconv"

	"github.com/jobhost/bindings/config"
	"github.com/jobhost/bindings/names"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/maps"
)

// provider of configurations populated by the koanf library.
type provider struct {
	k *koanf.Koanf
}

func (p *provider) Unmarshal(path string, flat bool, output any) error {
	return p.k.UnmarshalWithConf(path, output,
		koanf.UnmarshalConf{Tag: "path", FlatPaths: flat})
}

// P returns a config.Provider using the Koanf instance.
func P(k *koanf.Koanf) config.Provider {
	if k == nil {
		panic("k cannot be nil")
	}
	return &provider{k}
}

// Names returns a names.Resolver over the keys below prefix.
// Names are matched without regard to case.
func Names(k *koanf.Koanf, prefix string) names.Resolver {
	if k == nil {
		panic("k cannot be nil")
	}
	return names.Func(func(name string) (string, bool, error) {
		key := name
		if prefix != "" {
			key = prefix + k.Delim() + name
		}
		if k.Exists(key) {
			return k.String(key), true, nil
		}
		return names.Map(k.StringMap(prefix)).Resolve(name)
	})
}

// Merge extends the default merge to include slice conversions.
func Merge(src, dest map[string]any) error {
	ConvertSlices(src)
	maps.Merge(src, dest)
	return nil
}

// MergeStrict extends the strict merge to include slice conversions.
func MergeStrict(src, dest map[string]any) error {
	ConvertSlices(src)
	return maps.MergeStrict(src, dest)
}

// ConvertSlices converts maps with all integral keys into a
// slice with corresponding indices.
// returns the slice and true if successful
func ConvertSlices(m map[string]any) (any, bool) {
	var (
		invalid bool
		slice   []any
	)
	for k, v := range m {
		if c, ok := v.(map[string]any); ok {
			if cs, ok := ConvertSlices(c); ok {
				v, m[k] = cs, cs
			}
		}
		if invalid {
			continue
		}
		i, err := strconv.Atoi(k)
		if err != nil {
			invalid = true
			continue
		}
		if i >= len(slice) {
			ns := make([]any, i+1)
			copy(ns, slice)
			slice = ns
		}
		slice[i] = v
	}
	if slice != nil && !invalid {
		return slice, true
	}
	return nil, false
}
