// Package validation checks user-supplied policy identifiers before they
// reach a shell command or the change journal.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// Booleans and modules: alphanumeric plus underscore and dash.
	nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,255}$`)

	// SELinux types, e.g. httpd_sys_content_t.
	typeRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	changeIDRegex = regexp.MustCompile(`^chg_[0-9]+$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}

	validProtocols = []string{"tcp", "udp", "sctp", "dccp"}
)

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

// Engine returns the shared validator with the selab tags registered:
// selinux_name, selinux_type, fcpath, portspec and selinux_proto.
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New()
		_ = engine.RegisterValidation("selinux_name", fieldCheck(ValidateName))
		_ = engine.RegisterValidation("selinux_type", fieldCheck(ValidateType))
		_ = engine.RegisterValidation("fcpath", fieldCheck(ValidateFileContextPath))
		_ = engine.RegisterValidation("portspec", fieldCheck(ValidatePortSpec))
		_ = engine.RegisterValidation("selinux_proto", fieldCheck(ValidateProtocol))

		engine.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return engine
}

func fieldCheck(fn func(string) error) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String()) == nil
	}
}

// Struct validates a tagged struct and flattens the field errors into one
// readable message.
func Struct(s any) error {
	err := Engine().Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid validation error: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatError(fe))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

func formatError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "selinux_name":
		return fmt.Sprintf("%s is not a valid SELinux name: %v", field, fe.Value())
	case "selinux_type":
		return fmt.Sprintf("%s is not a valid SELinux type: %v", field, fe.Value())
	case "fcpath":
		return fmt.Sprintf("%s is not a valid file context path: %v", field, fe.Value())
	case "portspec":
		return fmt.Sprintf("%s is not a valid port or range: %v", field, fe.Value())
	case "selinux_proto":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(validProtocols, ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ValidateName validates a boolean or module name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if err := rejectDangerous("name", name); err != nil {
		return err
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name: %s (must be alphanumeric with -_)", name)
	}
	return nil
}

// ValidateType validates an SELinux type label.
func ValidateType(label string) error {
	if label == "" {
		return fmt.Errorf("type cannot be empty")
	}
	if err := rejectDangerous("type", label); err != nil {
		return err
	}
	if !typeRegex.MatchString(label) {
		return fmt.Errorf("invalid type: %s (must be alphanumeric with _)", label)
	}
	return nil
}

// ValidateFileContextPath validates a semanage fcontext path specification.
// Regular expressions such as "/srv/www(/.*)?" are allowed; quotes, null
// bytes and line breaks are not.
func ValidateFileContextPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	if strings.ContainsAny(path, "'\"`\x00\n\r") {
		return fmt.Errorf("path contains a forbidden character: %q", path)
	}
	if strings.Contains(path, "/../") || strings.HasSuffix(path, "/..") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}
	return nil
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidatePortSpec validates a single port ("8080") or a range ("8000-8010").
func ValidatePortSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("port cannot be empty")
	}
	lo, hi, isRange := strings.Cut(spec, "-")
	from, err := strconv.Atoi(lo)
	if err != nil {
		return fmt.Errorf("invalid port: %s", spec)
	}
	if err := ValidatePortNumber(from); err != nil {
		return err
	}
	if !isRange {
		return nil
	}
	to, err := strconv.Atoi(hi)
	if err != nil {
		return fmt.Errorf("invalid port range: %s", spec)
	}
	if err := ValidatePortNumber(to); err != nil {
		return err
	}
	if to < from {
		return fmt.Errorf("invalid port range: %s (end before start)", spec)
	}
	return nil
}

// Protocols lists the protocols semanage port accepts.
func Protocols() []string {
	return append([]string(nil), validProtocols...)
}

// ValidateProtocol validates a protocol name accepted by semanage port.
func ValidateProtocol(proto string) error {
	for _, valid := range validProtocols {
		if proto == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid protocol: %s (must be one of: %s)", proto, strings.Join(validProtocols, ", "))
}

// ValidateChangeID validates a journal record id of the form chg_<millis>.
func ValidateChangeID(id string) error {
	if !changeIDRegex.MatchString(id) {
		return fmt.Errorf("invalid change id: %q", id)
	}
	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}

// SanitizeString removes dangerous characters from a string (for display purposes)
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}

func rejectDangerous(what, s string) error {
	for _, char := range dangerousChars {
		if strings.Contains(s, char) {
			return fmt.Errorf("%s contains dangerous character: %q", what, char)
		}
	}
	return nil
}
