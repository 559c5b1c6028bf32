package odata

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceRoot = "https://api.businesscentral.dynamics.com/v1.0/api/beta"

func TestURIBuilder(t *testing.T) {
	id := uuid.MustParse("d84e0a58-f49d-4b38-a567-038baa924c49")

	tests := []struct {
		name  string
		build func() *URIBuilder
		want  string
	}{
		{
			name: "entity set under company",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot + "/").
					AppendEntitySetSegment("companies(d6a06f5d-0d04-473a-9edb-b79a792d84aa)").
					AppendEntitySetSegment("items")
			},
			want: serviceRoot + "/companies(d6a06f5d-0d04-473a-9edb-b79a792d84aa)/items",
		},
		{
			name: "guid key",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("items").AppendKeySegment(id)
			},
			want: serviceRoot + "/items(d84e0a58-f49d-4b38-a567-038baa924c49)",
		},
		{
			name: "integer key",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("Manufacturers").AppendKeySegment(123)
			},
			want: serviceRoot + "/Manufacturers(123)",
		},
		{
			name: "string key with quote",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("customers").AppendKeySegment("O'Brien & Co")
			},
			want: serviceRoot + "/customers('O%27%27Brien%20&%20Co')",
		},
		{
			name: "composite key",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("lines").
					AppendKeySegment(map[string]any{"lineNo": 10000, "docId": "A1"})
			},
			want: serviceRoot + "/lines(docId='A1',lineNo=10000)",
		},
		{
			name: "filter and expand",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("items").
					Filter("displayName eq 'ATHENS Schubladenelement'").
					Expand("baseUnitOfMeasure")
			},
			want: serviceRoot + "/items?$filter=displayName%20eq%20%27ATHENS%20Schubladenelement%27&$expand=baseUnitOfMeasure",
		},
		{
			name: "repeated option replaces, empty ignored",
			build: func() *URIBuilder {
				return NewURIBuilder(serviceRoot).AppendEntitySetSegment("items").
					Top(5).Filter("").Top(10).Select("id", "number")
			},
			want: serviceRoot + "/items?$top=10&$select=id%2Cnumber",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build().Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURIBuilder_Errors(t *testing.T) {
	_, err := NewURIBuilder(serviceRoot).AppendKeySegment(1).Build()
	require.Error(t, err)

	_, err = NewURIBuilder(serviceRoot).AppendEntitySetSegment("items").AppendKeySegment(1.5).Build()
	require.Error(t, err)

	_, err = NewURIBuilder(serviceRoot).AppendEntitySetSegment("items").AppendKeySegment(map[string]any{}).Build()
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	assert.Equal(t, uuid.MustParse("d84e0a58-f49d-4b38-a567-038baa924c49"), ParseKey("d84e0a58-f49d-4b38-a567-038baa924c49"))
	assert.Equal(t, int64(42), ParseKey("42"))
	assert.Equal(t, "ITEM-1", ParseKey("ITEM-1"))
}
