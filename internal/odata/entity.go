package odata

import (
	"sort"
	"strings"
)

// Entity is a decoded JSON entity, including OData control annotations such as "@odata.etag".
// Numbers are kept as json.Number.
type Entity map[string]any

// ETag returns the entity's concurrency token, if the service sent one.
func (e Entity) ETag() string {
	etag, _ := e["@odata.etag"].(string)
	return etag
}

// Properties returns the entity without control annotations.
func (e Entity) Properties() map[string]any {
	props := make(map[string]any, len(e))
	for k, v := range e {
		if isAnnotation(k) {
			continue
		}
		props[k] = v
	}
	return props
}

// PropertyNames returns the sorted names of all non-annotation properties.
func (e Entity) PropertyNames() []string {
	names := make([]string, 0, len(e))
	for k := range e {
		if !isAnnotation(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// isAnnotation matches "@odata.context" as well as property annotations like "picture@odata.mediaReadLink".
func isAnnotation(key string) bool {
	return strings.Contains(key, "@")
}

// entitySetPage is one page of an entity set response.
type entitySetPage struct {
	Value    []Entity `json:"value"`
	NextLink string   `json:"@odata.nextLink"`
}
