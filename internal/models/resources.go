package models

// Resource represents a generic controller API object (tenant, virtual service, etc.).
type Resource map[string]interface{}

// Collection is the standard controller list envelope.
type Collection struct {
	Count   int        `json:"count"`
	Next    *string    `json:"next,omitempty"`
	Results []Resource `json:"results"`
}

// Name returns the "name" field, or "" if absent or not a string.
func (r Resource) Name() string {
	s, _ := r["name"].(string)
	return s
}

// UUID returns the "uuid" field, or "" if absent or not a string.
func (r Resource) UUID() string {
	s, _ := r["uuid"].(string)
	return s
}

// Enabled returns the "enabled" field. If the field is missing or not a
// boolean, def is returned.
func (r Resource) Enabled(def bool) bool {
	b, ok := r["enabled"].(bool)
	if !ok {
		return def
	}
	return b
}

// FindByName returns the first resource whose name matches.
func FindByName(items []Resource, name string) (Resource, bool) {
	for _, item := range items {
		if item.Name() == name {
			return item, true
		}
	}
	return nil, false
}
