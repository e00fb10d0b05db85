package fields

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"marketplace-service/internal/validation"
)

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// jsonNode turns a decoding error into a validation node.
func jsonNode(err error, field string) validation.Node {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return validation.Field(typeErr.Field, fmt.Sprintf("%s has an invalid type", typeErr.Field))
	}
	return validation.Field(field, fmt.Sprintf("%s is malformed: %v", field, err))
}

// decodeParams decodes field definition params into dst and validates it when
// dst is a struct. Failures are nested under "params".
func decodeParams(raw json.RawMessage, dst any) []validation.Node {
	switch firstByte(raw) {
	case 0:
		raw = json.RawMessage(`{}`)
	case '{':
	default:
		return []validation.Node{validation.Field("params", "params must be an object")}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return []validation.Node{{Field: "params", Children: []validation.Node{jsonNode(err, "params")}}}
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}
	if nodes := validation.Struct(dst); len(nodes) > 0 {
		return []validation.Node{{Field: "params", Children: nodes}}
	}
	return nil
}

// decodeValue decodes one fields[] element into dst and validates it.
func decodeValue(raw json.RawMessage, dst any) []validation.Node {
	if firstByte(raw) != '{' {
		return []validation.Node{validation.Field("value", "field value must be an object")}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return []validation.Node{jsonNode(err, "value")}
	}
	return validation.Struct(dst)
}

// decodeFilter decodes a filter payload. Malformed payloads are client errors.
func decodeFilter(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return validation.NewError([]validation.Node{{Field: "filters", Children: []validation.Node{jsonNode(err, "filter")}}})
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}
	if nodes := validation.Struct(dst); len(nodes) > 0 {
		return validation.NewError([]validation.Node{{Field: "filters", Children: nodes}})
	}
	return nil
}

// flexFloat accepts both 12.5 and "12.5"; query-string filters carry numbers as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// stringList accepts ["a","b"] and a bare "a".
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	switch firstByte(b) {
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = []string{s}
	case 'n':
		*l = nil
	default:
		return errors.New("expected a string or a list of strings")
	}
	return nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	decimalType    = reflect.TypeOf(decimal.Decimal{})
	flexFloatType  = reflect.TypeOf(flexFloat(0))
	stringListType = reflect.TypeOf(stringList(nil))
)

var reflector = jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	Mapper: func(t reflect.Type) *jsonschema.Schema {
		switch t {
		case decimalType, flexFloatType:
			return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "number"}, {Type: "string"}}}
		case stringListType:
			return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			}}
		}
		return nil
	},
}

func schemaOf(v any) *jsonschema.Schema {
	if v == nil {
		return nil
	}
	return reflector.Reflect(v)
}
