package schema

import (
	"testing"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsUnknownField(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, errs := r.Validate("systems", catalog.Document{
		"_id":        "11111111-1111-1111-1111-111111111111",
		"name":       "sys1",
		"extra_junk": "nope",
	})
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unknown field")
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, errs := r.Validate("buckets", catalog.Document{
		"_id":  "bucket-1",
		"name": "photos",
	})
	assert.False(t, ok)
	assert.NotEmpty(t, errs)
}

func TestValidate_ObjectIDFormat(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, errs := r.Validate("buckets", catalog.Document{
		"_id":     "bucket-1",
		"system":  "not-a-uuid",
		"name":    "photos",
		"tiering": "22222222-2222-2222-2222-222222222222",
	})
	assert.False(t, ok)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "objectid")
}

func TestValidate_EnumField(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, _ := r.Validate("tiers", catalog.Document{
		"_id":            "tier-1",
		"system":         "11111111-1111-1111-1111-111111111111",
		"name":           "hot",
		"data_placement": "SCATTER",
		"pools":          []interface{}{},
	})
	assert.False(t, ok)
}

func TestValidate_ValidDocumentPasses(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, errs := r.Validate("tiers", catalog.Document{
		"_id":            "tier-1",
		"system":         "11111111-1111-1111-1111-111111111111",
		"name":           "hot",
		"data_placement": "MIRROR",
		"pools":          []interface{}{"22222222-2222-2222-2222-222222222222"},
	})
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestValidate_UnregisteredCollection(t *testing.T) {
	r := NewRegistry(Collections()...)
	ok, errs := r.Validate("unknown_collection", catalog.Document{"_id": "x"})
	assert.False(t, ok)
	require.Len(t, errs, 1)
}
