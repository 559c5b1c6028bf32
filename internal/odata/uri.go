package odata

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// URIBuilder composes resource paths and system query options relative to a service root.
// Segment names are used verbatim; only key literals and query values are escaped.
type URIBuilder struct {
	root     string
	segments []string
	query    [][2]string
	err      error
}

// NewURIBuilder starts a URI at serviceRoot.
func NewURIBuilder(serviceRoot string) *URIBuilder {
	return &URIBuilder{root: strings.TrimRight(serviceRoot, "/")}
}

// AppendEntitySetSegment appends a path segment such as "items" or "companies(<id>)".
func (b *URIBuilder) AppendEntitySetSegment(name string) *URIBuilder {
	name = strings.Trim(name, "/")
	if name != "" {
		b.segments = append(b.segments, name)
	}
	return b
}

// AppendKeySegment addresses a single entity of the preceding entity set.
// Supported keys: uuid.UUID, integers, strings, and map[string]any for composite keys.
func (b *URIBuilder) AppendKeySegment(key any) *URIBuilder {
	if len(b.segments) == 0 {
		b.setErr(fmt.Errorf("key segment requires a preceding entity set segment"))
		return b
	}

	literal, err := keyPredicate(key)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.segments[len(b.segments)-1] += "(" + literal + ")"
	return b
}

// Filter sets the $filter system query option.
func (b *URIBuilder) Filter(expr string) *URIBuilder {
	return b.option("$filter", expr)
}

// Expand sets the $expand system query option.
func (b *URIBuilder) Expand(navigation ...string) *URIBuilder {
	return b.option("$expand", strings.Join(navigation, ","))
}

// Select sets the $select system query option.
func (b *URIBuilder) Select(properties ...string) *URIBuilder {
	return b.option("$select", strings.Join(properties, ","))
}

// Top sets the $top system query option.
func (b *URIBuilder) Top(n int) *URIBuilder {
	return b.option("$top", strconv.Itoa(n))
}

// Build returns the absolute URI or the first error recorded while building.
func (b *URIBuilder) Build() (string, error) {
	if b.err != nil {
		return "", b.err
	}

	var sb strings.Builder
	sb.WriteString(b.root)
	for _, s := range b.segments {
		sb.WriteByte('/')
		sb.WriteString(s)
	}
	for i, q := range b.query {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(q[0])
		sb.WriteByte('=')
		sb.WriteString(escapeQueryValue(q[1]))
	}
	return sb.String(), nil
}

// option sets a query option once, replacing an earlier value. Empty values are ignored.
func (b *URIBuilder) option(name, value string) *URIBuilder {
	if value == "" {
		return b
	}
	for i := range b.query {
		if b.query[i][0] == name {
			b.query[i][1] = value
			return b
		}
	}
	b.query = append(b.query, [2]string{name, value})
	return b
}

func (b *URIBuilder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// escapeQueryValue percent-encodes spaces as %20; some OData services reject '+'.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// keyPredicate formats a key as an OData v4 key predicate body.
func keyPredicate(key any) (string, error) {
	if composite, ok := key.(map[string]any); ok {
		if len(composite) == 0 {
			return "", fmt.Errorf("composite key cannot be empty")
		}
		names := make([]string, 0, len(composite))
		for name := range composite {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			lit, err := keyLiteral(composite[name])
			if err != nil {
				return "", fmt.Errorf("key property %s: %w", name, err)
			}
			parts = append(parts, name+"="+lit)
		}
		return strings.Join(parts, ","), nil
	}
	return keyLiteral(key)
}

// keyLiteral formats a primitive value as an OData v4 URL literal.
func keyLiteral(v any) (string, error) {
	switch k := v.(type) {
	case uuid.UUID:
		return k.String(), nil
	case string:
		return "'" + url.PathEscape(strings.ReplaceAll(k, "'", "''")) + "'", nil
	case int:
		return strconv.Itoa(k), nil
	case int32:
		return strconv.FormatInt(int64(k), 10), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case uint:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(k), 10), nil
	case uint64:
		return strconv.FormatUint(k, 10), nil
	case bool:
		return strconv.FormatBool(k), nil
	default:
		return "", fmt.Errorf("unsupported key type %T", v)
	}
}

// ParseKey interprets a command-line key: GUIDs and integers keep their type,
// anything else is a string key.
func ParseKey(s string) any {
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
