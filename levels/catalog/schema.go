package catalog

// EntryDocument models one designer-authored level definition as it appears
// on disk. It is exported so the schema generator can reflect over the same
// contract designers author against.
type EntryDocument struct {
	ID    string       `json:"id" jsonschema:"title=Level entry id,pattern=^[a-z0-9\\-]+$,minLength=1,description=Designer facing identifier for the definition,required"`
	Label string       `json:"label,omitempty" jsonschema:"title=Label,description=Display name surfaced by editor tooling"`
	Logic string       `json:"logic,omitempty" jsonschema:"title=Collision logic,enum=none,enum=death,enum=finish,description=Gameplay consequence of touching the object"`
	Desc  DescDocument `json:"desc" jsonschema:"title=Shape descriptor,description=Collision shape stamped onto objects spawned from this entry,required"`
}

// DescDocument is the shape half of a level definition. Placement is not part
// of the catalog; positions are chosen when an object is spawned.
type DescDocument struct {
	Kind string  `json:"kind" jsonschema:"title=Shape kind,enum=plane,enum=cube,description=Closed set of collision shapes,required"`
	Size float64 `json:"size" jsonschema:"title=Shape size,minimum=0,maximum=256,description=Shape extent in world units,required"`
}

// FileDefinitions represents the contents of config/levels/definitions.json.
// The loader accepts either arrays or id-keyed objects; the schema models the
// canonical array format authored by designers.
type FileDefinitions []EntryDocument
