// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"reflect"
	"slices"
)

// ChangeSummary describes the result of comparing two AppConfigs.
type ChangeSummary struct {
	ChangedFields   []string // Field paths that changed, e.g. "Redis.Addr"
	RestartRequired bool     // True if any changed field is not hot reloadable
}

// hotReloadable lists the fields a running daemon applies without restart.
var hotReloadable = map[string]struct{}{
	"LogLevel": {},
}

// Diff compares two configurations field by field.
func Diff(old, next AppConfig) ChangeSummary {
	var s ChangeSummary
	s.compareStruct("", reflect.ValueOf(old), reflect.ValueOf(next))
	return s
}

func (s *ChangeSummary) compareStruct(prefix string, oldVal, nextVal reflect.Value) {
	t := oldVal.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Name == "Version" {
			continue
		}
		fieldPath := f.Name
		if prefix != "" {
			fieldPath = prefix + "." + f.Name
		}

		ov, nv := oldVal.Field(i), nextVal.Field(i)
		if ov.Kind() == reflect.Struct {
			s.compareStruct(fieldPath, ov, nv)
			continue
		}
		if !reflect.DeepEqual(normalizeValue(ov), normalizeValue(nv)) {
			s.ChangedFields = append(s.ChangedFields, fieldPath)
			if _, ok := hotReloadable[fieldPath]; !ok {
				s.RestartRequired = true
			}
		}
	}
}

// normalizeValue treats nil and empty string slices as equal and ignores order.
func normalizeValue(v reflect.Value) any {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
		if v.Len() == 0 {
			return []string{}
		}
		sorted := slices.Clone(v.Interface().([]string))
		slices.Sort(sorted)
		return sorted
	}
	return v.Interface()
}
