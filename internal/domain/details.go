package domain

// Details is the per-entity record fetched from the catalog. The concrete
// variant is chosen when the upstream response is decoded.
type Details interface {
	Kind() SourceKind
	ISRS() string
	ObjectName() string

	isDetails()
}

type LockChamber struct {
	LengthCm     int
	WidthCm      int
	HeightDiffCm int
}

type LockDetails struct {
	Code         string
	Name         string
	ContactPhone string
	FairwayName  string
	Chambers     []LockChamber
}

func (d LockDetails) Kind() SourceKind   { return KindLock }
func (d LockDetails) ISRS() string       { return d.Code }
func (d LockDetails) ObjectName() string { return d.Name }
func (LockDetails) isDetails()           {}

type BridgeDetails struct {
	Code         string
	Name         string
	FairwayName  string
	WaterwayName string
	Hectometre   int
	HeightCm     int
	WidthCm      int
}

func (d BridgeDetails) Kind() SourceKind   { return KindBridge }
func (d BridgeDetails) ISRS() string       { return d.Code }
func (d BridgeDetails) ObjectName() string { return d.Name }
func (BridgeDetails) isDetails()           {}

// Waterway prefers the fairway section name and falls back to the waterway.
func (d BridgeDetails) Waterway() string {
	if d.FairwayName != "" {
		return d.FairwayName
	}
	return d.WaterwayName
}

type BerthDetails struct {
	Code        string
	Name        string
	FairwayName string
	Hectometre  int
	LengthCm    int
	Category    string
}

func (d BerthDetails) Kind() SourceKind   { return KindBerth }
func (d BerthDetails) ISRS() string       { return d.Code }
func (d BerthDetails) ObjectName() string { return d.Name }
func (BerthDetails) isDetails()           {}

type NoticeDetails struct {
	Notice NoticeToSkippers
	// Section and header ids of the notice message on the catalog side.
	SectionIDs []string
}

func (d NoticeDetails) Kind() SourceKind   { return KindNotice }
func (d NoticeDetails) ISRS() string       { return d.Notice.ID }
func (d NoticeDetails) ObjectName() string { return d.Notice.Title }
func (NoticeDetails) isDetails()           {}

// GenericRisDetails is used when the catalog answers without the object
// specific payload, e.g. a berth record missing its berth section.
type GenericRisDetails struct {
	SourceKind SourceKind
	Code       string
	Name       string
	Attributes map[string]string
}

func (d GenericRisDetails) Kind() SourceKind { return d.SourceKind }
func (d GenericRisDetails) ISRS() string     { return d.Code }
func (d GenericRisDetails) ObjectName() string {
	if d.Name == "" {
		return string(d.SourceKind)
	}
	return d.Name
}
func (GenericRisDetails) isDetails() {}
