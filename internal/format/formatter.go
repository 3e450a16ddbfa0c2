// Package format renders catalog details into the resources served to clients.
package format

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/inlandnav/euris-resources/internal/domain"
)

const mimeType = "text/plain"

// Profile is the presentation of one source kind.
type Profile struct {
	Group string
	// DetailPath is joined with the base url and formatted with the ISRS code.
	DetailPath string

	summaryTemplate string
	noteTemplate    string
}

var profiles = map[domain.SourceKind]Profile{
	domain.KindLock: {
		Group:           "EuRIS_Lock",
		DetailPath:      "/visuris/api/Locks_v2/GetLock?isrs=%s",
		summaryTemplate: "lock.summary",
		noteTemplate:    "lock.note",
	},
	domain.KindBridge: {
		Group:           "EuRIS_Bridge",
		DetailPath:      "/visuris/api/Bridges/GetBridge?isrs=%s",
		summaryTemplate: "bridge.summary",
		noteTemplate:    "bridge.note",
	},
	domain.KindBerth: {
		Group:           "EuRIS_Berth",
		DetailPath:      "/visuris/api/Berths_v2/GetBerth?isrs=%s",
		summaryTemplate: "berth.summary",
		noteTemplate:    "berth.note",
	},
	domain.KindNotice: {
		Group:           "EuRIS_Notice",
		DetailPath:      "/visuris/api/NtsNotices/GetNotice?id=%s",
		summaryTemplate: "notice.summary",
		noteTemplate:    "notice.note",
	},
}

var genericProfile = Profile{
	Group:           "EuRIS",
	summaryTemplate: "generic.summary",
	noteTemplate:    "generic.note",
}

var templates = template.Must(
	template.New("format").Funcs(funcs).Parse(
		partials + lockTemplates + bridgeTemplates + berthTemplates + noticeTemplates + genericTemplates,
	),
)

type templateData struct {
	Details  domain.Details
	Schedule *domain.Schedule
	Notices  domain.Notices
}

type Formatter struct {
	baseURL string
	nowFunc func() time.Time
}

func NewFormatter(baseURL string, nowFunc func() time.Time) *Formatter {
	return &Formatter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		nowFunc: nowFunc,
	}
}

func profileFor(details domain.Details) Profile {
	if _, ok := details.(domain.GenericRisDetails); ok {
		return genericProfile
	}
	profile, ok := profiles[details.Kind()]
	if !ok {
		return genericProfile
	}
	return profile
}

// Summary renders the compact map marker for an entity.
func (f *Formatter) Summary(point domain.Point, details domain.Details) (domain.Summary, error) {
	if details == nil {
		return domain.Summary{}, fmt.Errorf("no details to summarize")
	}

	profile := profileFor(details)
	description, err := render(profile.summaryTemplate, templateData{Details: details})
	if err != nil {
		return domain.Summary{}, err
	}

	return domain.Summary{
		Kind:        details.Kind(),
		ID:          details.ISRS(),
		Name:        details.ObjectName(),
		Description: description,
		Point:       point,
	}, nil
}

// Note renders the long form of an entity. schedule and notices are optional.
func (f *Formatter) Note(point domain.Point, details domain.Details, schedule *domain.Schedule, notices domain.Notices) (domain.Note, error) {
	if details == nil {
		return domain.Note{}, fmt.Errorf("no details to render")
	}

	profile := profileFor(details)
	description, err := render(profile.noteTemplate, templateData{
		Details:  details,
		Schedule: schedule,
		Notices:  notices,
	})
	if err != nil {
		return domain.Note{}, err
	}

	var url string
	if profile.DetailPath != "" {
		url = f.baseURL + fmt.Sprintf(profile.DetailPath, details.ISRS())
	}

	return domain.Note{
		Kind:        details.Kind(),
		ID:          details.ISRS(),
		Name:        details.ObjectName(),
		Description: description,
		Group:       profile.Group,
		URL:         url,
		MimeType:    mimeType,
		Position:    point,
		Timestamp:   f.nowFunc(),
		ReadOnly:    true,
	}, nil
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
