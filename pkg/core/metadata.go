package core

// Column is a named, typed column of a relation.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// Relation is a queryable model or source known to the query service.
type Relation struct {
	UniqueID         string   `json:"uniqueId,omitempty"`
	Name             string   `json:"name"`
	RelationName     string   `json:"relationName"`
	Columns          []Column `json:"columns"`
	OriginalFilePath string   `json:"originalFilePath,omitempty"`
	Schema           string   `json:"schema,omitempty"`
}

// Metadata is the catalog snapshot returned by QueryService.GetMetadata.
type Metadata struct {
	Models  []Relation            `json:"models"`
	Sources []Relation            `json:"sources"`
	Schemas map[string][]Relation `json:"schemas"`
}

// ModelByID returns the model with the given unique id.
func (m *Metadata) ModelByID(id string) (Relation, bool) {
	if m == nil {
		return Relation{}, false
	}
	for _, r := range m.Models {
		if r.UniqueID == id {
			return r, true
		}
	}
	return Relation{}, false
}

// Environment is a named execution target.
type Environment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}
