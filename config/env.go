package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// envLoader copies `env`-tagged values onto a struct tree.
type envLoader struct {
	lookup  func(string) (string, bool)
	applied []string
	errs    []error
}

// loadFromEnv overlays process environment variables onto cfg.
func loadFromEnv(cfg *Config) error {
	_, err := overlayEnv(cfg, os.LookupEnv)
	return err
}

// overlayEnv applies every set variable and reports the names it used. All bad
// values are reported together.
func overlayEnv(cfg *Config, lookup func(string) (string, bool)) ([]string, error) {
	l := &envLoader{lookup: lookup}
	l.walk(reflect.ValueOf(cfg).Elem())
	return l.applied, errors.Join(l.errs...)
}

func (l *envLoader) walk(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field, meta := v.Field(i), t.Field(i)
		if !meta.IsExported() {
			continue
		}
		name := meta.Tag.Get("env")
		if name == "" {
			if field.Kind() == reflect.Struct {
				l.walk(field)
			}
			continue
		}
		raw, ok := l.lookup(name)
		if !ok || raw == "" {
			continue
		}
		if err := assign(field, raw); err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		l.applied = append(l.applied, name)
	}
}

func assign(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration %q", raw)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", field.Type().Elem().Kind())
		}
		items := splitList(raw)
		out := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			out.Index(i).SetString(item)
		}
		field.Set(out)

	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map %s", field.Type())
		}
		out := reflect.MakeMap(field.Type())
		for _, pair := range splitList(raw) {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return fmt.Errorf("invalid map entry %q, want key=value", pair)
			}
			out.SetMapIndex(reflect.ValueOf(strings.TrimSpace(k)).Convert(field.Type().Key()),
				reflect.ValueOf(strings.TrimSpace(v)).Convert(field.Type().Elem()))
		}
		field.Set(out)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
