package schema

// Collections returns the declarative schema for every collection named in
// spec.md 3 (the DATA MODEL section). CatalogManager loads this set at
// startup to build its Registry and to declare the store's compound unique
// indexes (see pkg/catalogmgr).
func Collections() []Schema {
	return []Schema{
		{
			Collection: "systems",
			Fields: []Field{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "accounts",
			Fields: []Field{
				{Name: "email", Type: TypeString, Required: true},
				{Name: "credentials", Type: TypeString, Nullable: true},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "roles",
			Fields: []Field{
				{Name: "account", Type: TypeObjectID, Required: true},
				{Name: "system", Type: TypeObjectID, Required: true},
				{Name: "role_name", Type: TypeString, Required: true},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "buckets",
			Fields: []Field{
				{Name: "system", Type: TypeObjectID, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "tiering", Type: TypeObjectID, Required: true},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "tiering_policies",
			Fields: []Field{
				{Name: "system", Type: TypeObjectID, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "tiers", Type: TypeArray, Required: true, Items: &Field{Type: TypeObjectID}},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "tiers",
			Fields: []Field{
				{Name: "system", Type: TypeObjectID, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "data_placement", Type: TypeEnum, Required: true, Enum: []string{"MIRROR", "SPREAD"}},
				{Name: "pools", Type: TypeArray, Required: true, Items: &Field{Type: TypeObjectID}},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
		{
			Collection: "pools",
			Fields: []Field{
				{Name: "system", Type: TypeObjectID, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "nodes", Type: TypeArray, Required: true, Items: &Field{Type: TypeObjectID}},
				{Name: "deleted", Type: TypeTimestamp, Nullable: true},
			},
		},
	}
}

// UniqueIndexSpecs names the collections whose (system, name, deleted) (or
// (name, deleted) / (email, deleted)) tuple must be unique, per spec.md 3's
// invariant 1. CatalogManager turns these into both store-level compound
// indexes and catalog.IndexSpec entries for CheckIndexes.
type UniqueIndexSpec struct {
	Collection string
	// ScopeField is the resolved reference field the index hangs off of
	// ("system" for most collections); empty for system-less collections.
	ScopeField string
	// ExtraScopeField is a second resolved-reference field that, together
	// with ScopeField, forms a composite scope. Empty for every collection
	// except roles, whose natural key is the (account, system, role_name)
	// triple rather than a single-reference scope.
	ExtraScopeField string
	// NameField is the field, beyond scope and "deleted", that must be
	// unique within scope ("name" for most, "email" for accounts,
	// "role_name" for roles).
	NameField string
}

func UniqueIndexSpecs() []UniqueIndexSpec {
	return []UniqueIndexSpec{
		{Collection: "systems", NameField: "name"},
		{Collection: "accounts", NameField: "email"},
		{Collection: "roles", ScopeField: "account", ExtraScopeField: "system", NameField: "role_name"},
		{Collection: "buckets", ScopeField: "system", NameField: "name"},
		{Collection: "tiering_policies", ScopeField: "system", NameField: "name"},
		{Collection: "tiers", ScopeField: "system", NameField: "name"},
		{Collection: "pools", ScopeField: "system", NameField: "name"},
	}
}
