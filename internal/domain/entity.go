package domain

type SourceKind string

const (
	KindLock   SourceKind = "lock"
	KindBridge SourceKind = "bridge"
	KindBerth  SourceKind = "berth"
	KindNotice SourceKind = "notice"
)

// Entity is one row from a source's list call. It only lives for the duration of a query.
type Entity struct {
	ID    string
	Name  string
	Point Point
	Kind  SourceKind
}

func (e Entity) Key() string {
	return NewCompositeKey(e.Kind, e.ID)
}
