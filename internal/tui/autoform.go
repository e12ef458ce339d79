package tui

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/selab/internal/validation"
)

// portInput backs the "add port" form.
type portInput struct {
	Port     string `tui:"title=Port,desc=Single port or range (8000-8010),validate=port"`
	Protocol string `tui:"title=Protocol,options=tcp,udp,sctp,dccp"`
	Label    string `tui:"title=Type,desc=Port type such as http_port_t,validate=type"`
}

// fileContextInput backs the "add file context" form.
type fileContextInput struct {
	Path  string `tui:"title=Path,desc=Absolute path or regex such as /srv/www(/.*)?,validate=path"`
	Label string `tui:"title=Type,desc=File type such as httpd_sys_content_t,validate=type"`
}

// AutoForm builds a huh.Form from a pointer to a struct whose string
// fields carry a `tui:"..."` tag. Supported keys are title, desc, options
// (comma separated, must come last) and validate (a Validators key).
func AutoForm(v any) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		tag := t.Field(i).Tag.Get("tui")
		if tag == "" || field.Kind() != reflect.String {
			continue
		}
		props := parseTag(tag)
		title := props["title"]
		if title == "" {
			title = t.Field(i).Name
		}
		ptr := field.Addr().Interface().(*string)

		if opts, ok := props["options"]; ok {
			var options []huh.Option[string]
			for _, o := range strings.Split(opts, ",") {
				o = strings.TrimSpace(o)
				options = append(options, huh.NewOption(o, o))
			}
			if *ptr == "" && len(options) > 0 {
				*ptr = options[0].Value
			}
			fields = append(fields, huh.NewSelect[string]().
				Title(title).
				Description(props["desc"]).
				Options(options...).
				Value(ptr))
			continue
		}

		input := huh.NewInput().
			Title(title).
			Description(props["desc"]).
			Value(ptr)
		if fn, ok := Validators[props["validate"]]; ok {
			input.Validate(fn)
		}
		fields = append(fields, input)
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeBase16())
}

// parseTag splits "key=val,key2=val2". Everything after options= belongs
// to the option list.
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	if i := strings.Index(tag, "options="); i >= 0 {
		res["options"] = tag[i+len("options="):]
		tag = strings.TrimSuffix(tag[:i], ",")
	}
	for _, part := range strings.Split(tag, ",") {
		if k, v, ok := strings.Cut(part, "="); ok {
			res[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return res
}

// Validators maps validate= keys to field checks.
var Validators = map[string]func(string) error{
	"required": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("this field is required")
		}
		return nil
	},
	"port": func(s string) error { return validation.ValidatePortSpec(strings.TrimSpace(s)) },
	"type": func(s string) error { return validation.ValidateType(strings.TrimSpace(s)) },
	"path": func(s string) error { return validation.ValidateFileContextPath(strings.TrimSpace(s)) },
}
