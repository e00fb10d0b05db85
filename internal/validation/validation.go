// Package validation turns go-playground/validator failures into the
// {field, constraints, children} tree returned to clients, and flattens it
// into the human-readable message list surfaced in 400 responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Node is one field-scoped validation failure. Children hold nested failures
// (struct members or slice elements).
type Node struct {
	Field       string   `json:"field"`
	Constraints []string `json:"constraints,omitempty"`
	Children    []Node   `json:"children,omitempty"`
}

// Field builds a leaf node.
func Field(name string, constraints ...string) Node {
	return Node{Field: name, Constraints: constraints}
}

// Flatten walks nodes depth-first and collects every constraint message.
func Flatten(nodes []Node) []string {
	var out []string
	var walk func(n Node)
	walk = func(n Node) {
		out = append(out, n.Constraints...)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// Error is returned by operations that reject their input.
type Error struct {
	Nodes []Node
}

// NewError wraps nodes into an *Error. It returns nil when nodes is empty.
func NewError(nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return &Error{Nodes: nodes}
}

// Messages returns the flattened message list.
func (e *Error) Messages() []string {
	return Flatten(e.Nodes)
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var imageURLPattern = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|bmp|svg|heic|avif)(\?.*)?$`)

// IsImageURL reports whether s ends with an image file extension.
func IsImageURL(s string) bool {
	return imageURLPattern.MatchString(s)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	// Prices are compared numerically by gt/gte/lte tags.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("image_url", func(fl validator.FieldLevel) bool {
		return IsImageURL(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Struct validates s and returns the failure tree, or nil when s is valid.
func Struct(s any) []Node {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	return FromValidator(err)
}

// Validate validates s and returns an *Error on failure.
func Validate(s any) error {
	return NewError(Struct(s))
}

// FromValidator converts validator errors into a node tree keyed by json field names.
func FromValidator(err error) []Node {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Node{Field("", err.Error())}
	}
	var roots []Node
	for _, fe := range verrs {
		path := splitNamespace(fe.Namespace())
		roots = insert(roots, path, message(fe))
	}
	return roots
}

// splitNamespace turns "Input.value[2].title" into ["value", "2", "title"],
// dropping the root struct name.
func splitNamespace(ns string) []string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	var path []string
	for _, p := range parts {
		for p != "" {
			i := strings.IndexByte(p, '[')
			if i < 0 {
				path = append(path, p)
				break
			}
			if i > 0 {
				path = append(path, p[:i])
			}
			j := strings.IndexByte(p[i:], ']')
			if j < 0 {
				path = append(path, p[i:])
				break
			}
			path = append(path, p[i+1:i+j])
			p = p[i+j+1:]
		}
	}
	return path
}

func insert(nodes []Node, path []string, msg string) []Node {
	if len(path) == 0 {
		return nodes
	}
	for i := range nodes {
		if nodes[i].Field == path[0] {
			if len(path) == 1 {
				nodes[i].Constraints = append(nodes[i].Constraints, msg)
			} else {
				nodes[i].Children = insert(nodes[i].Children, path[1:], msg)
			}
			return nodes
		}
	}
	n := Node{Field: path[0]}
	if len(path) == 1 {
		n.Constraints = []string{msg}
	} else {
		n.Children = insert(nil, path[1:], msg)
	}
	return append(nodes, n)
}

func message(fe validator.FieldError) string {
	// Slice elements are reported as "value[0]".
	name := fe.Field()
	isString := fe.Kind() == reflect.String
	isList := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s should not be empty", name)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be shorter than or equal to %s characters", name, fe.Param())
		}
		if isList {
			return fmt.Sprintf("%s must contain no more than %s elements", name, fe.Param())
		}
		return fmt.Sprintf("%s must not be greater than %s", name, fe.Param())
	case "min":
		if isString {
			return fmt.Sprintf("%s must be longer than or equal to %s characters", name, fe.Param())
		}
		if isList {
			return fmt.Sprintf("%s must contain at least %s elements", name, fe.Param())
		}
		return fmt.Sprintf("%s must not be less than %s", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be less than %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must not be greater than %s", name, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", name, fe.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain only letters (a-zA-Z)", name)
	case "uppercase":
		return fmt.Sprintf("%s must be uppercase", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of the following values: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "image_url":
		return fmt.Sprintf("%s must be an image URL", name)
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", name)
	case "url":
		return fmt.Sprintf("%s must be a URL address", name)
	default:
		return fmt.Sprintf("%s failed on the '%s' validation", name, fe.Tag())
	}
}
