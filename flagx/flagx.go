// Package flagx binds cobra flags to tagged structs, the way gin binds requests:
//
//	type serveFlags struct {
//	    ConfigDir string        `flag:"config,c" usage:"config directory" default:"configs"`
//	    Grace     time.Duration `flag:"grace" default:"10s"`
//	}
//
//	flagx.Bind(cmd, &serveFlags{})   // register
//	flagx.Parse(cmd, &f)             // read back after cobra parsed argv
package flagx

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var durationType = reflect.TypeOf(time.Duration(0))

type flagTag struct {
	name     string
	short    string
	usage    string
	def      string
	required bool
}

func parseTag(f reflect.StructField) (flagTag, bool) {
	raw := f.Tag.Get("flag")
	if raw == "" {
		return flagTag{}, false
	}
	name, short, _ := strings.Cut(raw, ",")
	return flagTag{
		name:     name,
		short:    short,
		usage:    f.Tag.Get("usage"),
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}, true
}

func structValue(target interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("flagx: target must be a pointer to struct, got %T", target)
	}
	return v.Elem(), nil
}

// Bind registers one flag per tagged field of target
func Bind(cmd *cobra.Command, target interface{}) error {
	v, err := structValue(target)
	if err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, ok := parseTag(t.Field(i))
		if !ok {
			continue
		}
		if err := register(cmd, t.Field(i).Type, tag); err != nil {
			return fmt.Errorf("flagx: field %s: %w", t.Field(i).Name, err)
		}
		if tag.required {
			if err := cmd.MarkFlagRequired(tag.name); err != nil {
				return err
			}
		}
	}
	return nil
}

func register(cmd *cobra.Command, typ reflect.Type, tag flagTag) error {
	fs := cmd.Flags()
	if typ == durationType {
		def := time.Duration(0)
		if tag.def != "" {
			d, err := time.ParseDuration(tag.def)
			if err != nil {
				return err
			}
			def = d
		}
		fs.DurationP(tag.name, tag.short, def, tag.usage)
		return nil
	}

	switch typ.Kind() {
	case reflect.String:
		fs.StringP(tag.name, tag.short, tag.def, tag.usage)
	case reflect.Int:
		def := 0
		if tag.def != "" {
			n, err := strconv.Atoi(tag.def)
			if err != nil {
				return err
			}
			def = n
		}
		fs.IntP(tag.name, tag.short, def, tag.usage)
	case reflect.Bool:
		def := false
		if tag.def != "" {
			b, err := strconv.ParseBool(tag.def)
			if err != nil {
				return err
			}
			def = b
		}
		fs.BoolP(tag.name, tag.short, def, tag.usage)
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", typ.Elem().Kind())
		}
		var def []string
		if tag.def != "" {
			def = strings.Split(tag.def, ",")
		}
		fs.StringSliceP(tag.name, tag.short, def, tag.usage)
	default:
		return fmt.Errorf("unsupported type %s", typ)
	}
	return nil
}

// Parse copies the parsed flag values into target
func Parse(cmd *cobra.Command, target interface{}) error {
	v, err := structValue(target)
	if err != nil {
		return err
	}
	t := v.Type()
	fs := cmd.Flags()
	for i := 0; i < t.NumField(); i++ {
		tag, ok := parseTag(t.Field(i))
		if !ok || !v.Field(i).CanSet() {
			continue
		}
		field := v.Field(i)

		if field.Type() == durationType {
			d, err := fs.GetDuration(tag.name)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			continue
		}
		switch field.Kind() {
		case reflect.String:
			s, err := fs.GetString(tag.name)
			if err != nil {
				return err
			}
			field.SetString(s)
		case reflect.Int:
			n, err := fs.GetInt(tag.name)
			if err != nil {
				return err
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := fs.GetBool(tag.name)
			if err != nil {
				return err
			}
			field.SetBool(b)
		case reflect.Slice:
			s, err := fs.GetStringSlice(tag.name)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(s))
		default:
			return fmt.Errorf("flagx: field %s: unsupported type %s", t.Field(i).Name, field.Type())
		}
	}
	return nil
}
