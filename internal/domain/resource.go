package domain

import "time"

// Resource is either a Summary or a Note.
type Resource interface {
	ResourceKey() string

	isResource()
}

// Summary is the compact map-marker representation of an entity.
type Summary struct {
	Kind        SourceKind
	ID          string
	Name        string
	Description string
	Point       Point
}

func (s Summary) ResourceKey() string { return NewCompositeKey(s.Kind, s.ID) }
func (Summary) isResource()           {}

// Note is the long-form representation of an entity.
type Note struct {
	Kind        SourceKind
	ID          string
	Name        string
	Description string
	Group       string
	URL         string
	MimeType    string
	Position    Point
	Timestamp   time.Time
	ReadOnly    bool
}

func (n Note) ResourceKey() string { return NewCompositeKey(n.Kind, n.ID) }
func (Note) isResource()           {}

// ResourceMap maps composite keys to resources. It is rebuilt for every query.
type ResourceMap map[string]Resource
