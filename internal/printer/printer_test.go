package printer

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestPrinter(buf *bytes.Buffer) *Printer {
	p := New(buf)
	p.loc = time.UTC
	return p
}

func TestFormat(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)

	props := map[string]any{
		"number":               "1000",
		"unitPrice":            json.Number("123.4"),
		"blocked":              false,
		"itemCategoryId":       nil,
		"lastModifiedDateTime": "2019-01-10T08:30:15.123Z",
		"address": map[string]any{
			"street": "Main St 1",
			"city":   "Athens",
		},
		"tags": []any{"a", map[string]any{"k": "v"}},
	}

	want := "address:\n" +
		"  city: Athens\n" +
		"  street: Main St 1\n" +
		"blocked: false\n" +
		"itemCategoryId: null\n" +
		"lastModifiedDateTime: 2019-01-10 08:30\n" +
		"number: 1000\n" +
		"tags:\n" +
		"  - a\n" +
		"  -\n" +
		"    k: v\n" +
		"unitPrice: 123.4"

	assert.Equal(t, want, p.Format(props, 0))
}

func TestFormat_Indented(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)

	assert.Equal(t, "    a: 1", p.Format(map[string]any{"a": 1}, 2))
	assert.Empty(t, p.Format(map[string]any{}, 0))
}

func TestPrinter_SectionAndList(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)

	p.Section("Read Edm")
	p.List("Found EntityTypes", []string{"Microsoft.NAV.item", "Microsoft.NAV.customer"})
	p.Entity("Entry:", map[string]any{"number": "1000"})

	out := buf.String()
	assert.Contains(t, out, "----- Read Edm ---")
	assert.Contains(t, out, "Found EntityTypes\n    Microsoft.NAV.item\n    Microsoft.NAV.customer\n\n")
	assert.Contains(t, out, "Entry:\nnumber: 1000\n")
}
