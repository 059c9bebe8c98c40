package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

type field struct {
	value    reflect.Value
	name     string
	aliases  []string
	help     string
	def      string
	required bool
}

func describe(v reflect.Value) ([]*field, error) {
	t := v.Type()
	fields := make([]*field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if !supported(sf.Type) {
			return nil, fmt.Errorf("field %s: unsupported type %v", sf.Name, sf.Type)
		}

		f := &field{
			value:    fv,
			name:     sf.Tag.Get("name"),
			help:     sf.Tag.Get("help"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
		}
		if f.name == "" {
			f.name = toKebabCase(sf.Name)
		}
		if alias := sf.Tag.Get("alias"); alias != "" {
			for _, a := range strings.Split(alias, ",") {
				f.aliases = append(f.aliases, strings.TrimSpace(a))
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func supported(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.String
	}
	return false
}

// check validates s without modifying the field.
func (f *field) check(s string) error {
	tmp := reflect.New(f.value.Type()).Elem()
	return assign(tmp, s)
}

func (f *field) Set(s string) error {
	return assign(f.value, s)
}

func assign(fv reflect.Value, s string) error {
	ft := fv.Type()
	switch ft.Kind() {
	case reflect.String:
		fv.SetString(s)
	case reflect.Bool:
		fv.SetBool(ParseBool(s))
	case reflect.Int, reflect.Int32, reflect.Int64:
		if ft == durationType {
			d, err := time.ParseDuration(s)
			if err != nil {
				return err
			}
			fv.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(s, 10, ft.Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, ft.Bits())
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type: %v", ft.Kind())
	}
	return nil
}

func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}
