package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"marketplace-service/internal/catalog"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/validation"
)

// ListingLimits bounds the page size clients may request.
type ListingLimits struct {
	DefaultLimit int
	MaxLimit     int
}

// maxPage keeps (page-1)*limit far from integer overflow.
const maxPage = 1_000_000

// qsNode is one level of a bracketed query string such as
// filters[fieldId][from]=1. Keys keep the order they first appeared in.
type qsNode struct {
	keys   []string
	kids   map[string]*qsNode
	values []string
}

func (n *qsNode) child(key string) *qsNode {
	if n.kids == nil {
		n.kids = make(map[string]*qsNode)
	}
	c, ok := n.kids[key]
	if !ok {
		c = &qsNode{}
		n.kids[key] = c
		n.keys = append(n.keys, key)
	}
	return c
}

// insert stores value under path. An empty segment (a[]) appends.
func (n *qsNode) insert(path []string, value string) {
	if len(path) == 0 {
		n.values = append(n.values, value)
		return
	}
	key := path[0]
	if key == "" {
		key = strconv.Itoa(len(n.keys))
	}
	n.child(key).insert(path[1:], value)
}

func (n *qsNode) isLeaf() bool { return len(n.keys) == 0 }

// isList reports whether every key is an array index.
func (n *qsNode) isList() bool {
	if n.isLeaf() {
		return false
	}
	for _, k := range n.keys {
		if i, err := strconv.Atoi(k); err != nil || i < 0 {
			return false
		}
	}
	return true
}

// toJSON renders the node: leaves become strings (or string arrays when the
// key repeats), index-keyed nodes become arrays, everything else objects.
func (n *qsNode) toJSON() (json.RawMessage, error) {
	if n.isLeaf() {
		if len(n.values) == 1 {
			return json.Marshal(n.values[0])
		}
		return json.Marshal(n.values)
	}
	if n.isList() {
		keys := append([]string(nil), n.keys...)
		sort.SliceStable(keys, func(i, j int) bool {
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		})
		items := make([]json.RawMessage, 0, len(keys))
		for _, k := range keys {
			item, err := n.kids[k].toJSON()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return json.Marshal(items)
	}
	obj := make(map[string]json.RawMessage, len(n.keys))
	for _, k := range n.keys {
		item, err := n.kids[k].toJSON()
		if err != nil {
			return nil, err
		}
		obj[k] = item
	}
	return json.Marshal(obj)
}

// payload renders a filter value. A single leaf that already holds a JSON
// object or array is passed through as is.
func (n *qsNode) payload() (json.RawMessage, error) {
	if n.isLeaf() && len(n.values) == 1 {
		v := strings.TrimSpace(n.values[0])
		if (strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[")) && json.Valid([]byte(v)) {
			return json.RawMessage(v), nil
		}
	}
	return n.toJSON()
}

// splitKey turns "filters[a][b][]" into ["filters", "a", "b", ""]. A key with
// unbalanced brackets is taken literally.
func splitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}
	path := []string{key[:open]}
	rest := key[open:]
	for rest != "" {
		if rest[0] != '[' {
			return []string{key}
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

// parseQueryTree parses rawQuery preserving parameter order, which
// url.ParseQuery does not.
func parseQueryTree(rawQuery string) (*qsNode, error) {
	root := &qsNode{}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("malformed query parameter %q", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("malformed value for query parameter %q", key)
		}
		root.insert(splitKey(key), value)
	}
	return root, nil
}

// orderedObject decodes a JSON object keeping its key order.
func orderedObject(raw string) ([]string, map[string]json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, nil, false
	}
	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, false
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, false
	}
	return keys, values, true
}

// entries returns the key/value pairs of an object-valued parameter, either
// bracketed (name[key]=...) or a JSON object string (name={...}).
func entries(name string, n *qsNode) ([]string, map[string]*qsNode, map[string]json.RawMessage, error) {
	notObject := fmt.Errorf("%s must be an object", name)
	if n.isLeaf() {
		if len(n.values) != 1 {
			return nil, nil, nil, notObject
		}
		keys, values, ok := orderedObject(n.values[0])
		if !ok {
			return nil, nil, nil, notObject
		}
		return keys, nil, values, nil
	}
	if n.isList() {
		return nil, nil, nil, notObject
	}
	return n.keys, n.kids, nil, nil
}

func parseFilters(n *qsNode) ([]catalog.Filter, error) {
	keys, kids, raw, err := entries("filters", n)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Filter, 0, len(keys))
	for _, k := range keys {
		var payload json.RawMessage
		if raw != nil {
			payload = raw[k]
		} else if payload, err = kids[k].payload(); err != nil {
			return nil, err
		}
		out = append(out, catalog.Filter{FieldID: k, Payload: payload})
	}
	return out, nil
}

func parseSorting(n *qsNode) ([]catalog.Sort, error) {
	keys, kids, raw, err := entries("sorting", n)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Sort, 0, len(keys))
	for _, k := range keys {
		var dir string
		if raw != nil {
			if err := json.Unmarshal(raw[k], &dir); err != nil {
				return nil, fmt.Errorf("sorting[%s] must be ASC or DESC", k)
			}
		} else {
			kid := kids[k]
			if !kid.isLeaf() || len(kid.values) != 1 {
				return nil, fmt.Errorf("sorting[%s] must be ASC or DESC", k)
			}
			dir = kid.values[0]
		}
		d, ok := fields.ParseDirection(dir)
		if !ok {
			return nil, fmt.Errorf("sorting[%s] must be ASC or DESC", k)
		}
		out = append(out, catalog.Sort{FieldID: k, Direction: d})
	}
	return out, nil
}

// scalar returns the last value of a plain parameter.
func scalar(root *qsNode, name string) (string, bool) {
	n, ok := root.kids[name]
	if !ok || len(n.values) == 0 {
		return "", false
	}
	return n.values[len(n.values)-1], true
}

func optionalScalar(root *qsNode, name string) *string {
	v, ok := scalar(root, name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// parseListQuery builds a listing request from the raw query string.
// Malformed filters, sorting or status are reported as a validation error.
func parseListQuery(rawQuery string, limits ListingLimits) (catalog.ListQuery, error) {
	q := catalog.ListQuery{Page: 1, Limit: limits.DefaultLimit}
	root, err := parseQueryTree(rawQuery)
	if err != nil {
		return q, invalidQuery("query", err)
	}

	if v, ok := scalar(root, "page"); ok {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			q.Page = page
		}
	}
	if v, ok := scalar(root, "limit"); ok {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			q.Limit = limit
		}
	}
	if q.Limit > limits.MaxLimit {
		q.Limit = limits.MaxLimit
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}

	q.Search = optionalScalar(root, "search")
	q.UserID = optionalScalar(root, "user")
	q.CategoryID = optionalScalar(root, "category_id")
	if err := checkCategoryID(q.CategoryID); err != nil {
		return q, err
	}
	if v := optionalScalar(root, "status"); v != nil {
		status := domain.ProductStatus(strings.ToUpper(*v))
		if !status.Valid() {
			return q, validation.NewError([]validation.Node{
				validation.Field("status", "status must be one of the following values: ACTIVE, DRAFT, INACTIVE, BLOCKED"),
			})
		}
		q.Status = status
	}

	if n, ok := root.kids["filters"]; ok {
		if q.Filters, err = parseFilters(n); err != nil {
			return q, invalidQuery("filters", err)
		}
	}
	if n, ok := root.kids["sorting"]; ok {
		if q.Sorting, err = parseSorting(n); err != nil {
			return q, invalidQuery("sorting", err)
		}
	}
	return q, nil
}

// checkCategoryID rejects a category filter that is not a UUID before it
// reaches the database.
func checkCategoryID(id *string) error {
	if id == nil {
		return nil
	}
	if _, err := uuid.Parse(*id); err != nil {
		return validation.NewError([]validation.Node{
			validation.Field("category_id", "category_id must be a UUID"),
		})
	}
	return nil
}

func invalidQuery(field string, err error) error {
	return validation.NewError([]validation.Node{validation.Field(field, err.Error())})
}
