package format

import (
	"fmt"
	"strconv"
	"text/template"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/inlandnav/euris-resources/internal/domain"
)

var funcs = template.FuncMap{
	// metres renders a centimetre value, e.g. 1450 -> 14.5m
	"metres": func(cm int) string {
		return strconv.FormatFloat(float64(cm)/100, 'f', -1, 64) + "m"
	},
	// km renders a hectometre marker as kilometres
	"km": func(hectometre int) string {
		return fmt.Sprintf("%.1f", float64(hectometre)/10)
	},
	"clock": func(t time.Time) string {
		return t.Format("15:04")
	},
	"date": func(t time.Time) string {
		return t.Format("January 2 2006")
	},
	"inc": func(i int) int {
		return i + 1
	},
	"list": func(notices ...domain.NoticeToSkippers) domain.Notices {
		return notices
	},
	"title": func(s string) string {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return s
		}
		return string(unicode.ToUpper(r)) + s[size:]
	},
}

const partials = `
{{- define "notices" -}}
{{- range $i, $n := . }}
Notice to skippers {{ inc $i }}
{{ title $n.MessageType }}, published by {{ $n.Originator }} on {{ date $n.Issued }}
Valid from {{ date $n.ValidFrom }} to {{ date $n.ValidTo }}
{{ title $n.Title }}
{{- if $n.Contents }}
{{ $n.Contents }}
{{- end }}
{{- range $n.Links }}
{{ .Label }}: {{ .URL }}
{{- end }}
{{ end -}}
{{- end -}}

{{- define "schedule" -}}
{{- if . }}{{ if .OperatingTimes }}
Operating times today
{{- range .OperatingTimes }}
{{ clock .Start }} - {{ clock .End }} {{ .Status }}
{{- range $i, $r := .Remarks }}
Remark {{ inc $i }}: {{ $r }}
{{- end }}
{{- range $i, $d := .Directions }}
Direction {{ inc $i }}: {{ $d }}
{{- end }}
{{- end }}
{{ end }}{{ end -}}
{{- end -}}
`

const lockTemplates = `
{{- define "lock.summary" -}}
{{ len .Details.Chambers }} chamber(s)
{{- range $i, $c := .Details.Chambers }}{{ if $i }};{{ else }} -{{ end }} Δ {{ if $c.HeightDiffCm }}{{ metres $c.HeightDiffCm }}{{ else }}-{{ end }}{{ end }}
{{- with .Details.ContactPhone }} - {{ . }}{{ end }}
{{- end -}}

{{- define "lock.note" -}}
{{ .Details.Name }}
{{- with .Details.FairwayName }}, {{ . }}{{ end }}
{{ len .Details.Chambers }} chamber(s)
{{- range $i, $c := .Details.Chambers }}
Chamber {{ inc $i }}:
{{- if $c.HeightDiffCm }} Δ {{ metres $c.HeightDiffCm }}{{ end }}
{{- if $c.LengthCm }} L {{ metres $c.LengthCm }}{{ end }}
{{- if $c.WidthCm }} W {{ metres $c.WidthCm }}{{ end }}
{{- end }}
{{- with .Details.ContactPhone }}
Phone: {{ . }}
{{- end }}
{{ template "notices" .Notices }}{{ template "schedule" .Schedule }}
{{- end -}}
`

const bridgeTemplates = `
{{- define "bridge.summary" -}}
H {{ if .Details.HeightCm }}{{ metres .Details.HeightCm }}{{ else }}-{{ end }} * W {{ if .Details.WidthCm }}{{ metres .Details.WidthCm }}{{ else }}-{{ end }}
{{- end -}}

{{- define "bridge.note" -}}
{{ .Details.Waterway }}, km {{ km .Details.Hectometre }}
Dimensions: H {{ if .Details.HeightCm }}{{ metres .Details.HeightCm }}{{ else }}-{{ end }} * W {{ if .Details.WidthCm }}{{ metres .Details.WidthCm }}{{ else }}-{{ end }}
{{ template "notices" .Notices }}{{ template "schedule" .Schedule }}
{{- end -}}
`

const berthTemplates = `
{{- define "berth.summary" -}}
{{ with .Details.Category }}{{ title . }}{{ else }}Berth{{ end }}
{{- if .Details.LengthCm }} - L {{ metres .Details.LengthCm }}{{ end }}
{{- end -}}

{{- define "berth.note" -}}
{{ with .Details.Category }}{{ title . }}{{ else }}Berth{{ end }}
{{- with .Details.FairwayName }}, {{ . }}{{ end }}
{{- if .Details.Hectometre }}, km {{ km .Details.Hectometre }}{{ end }}
{{- if .Details.LengthCm }}
Length: {{ metres .Details.LengthCm }}
{{- end }}
{{ template "notices" .Notices }}{{ template "schedule" .Schedule }}
{{- end -}}
`

const noticeTemplates = `
{{- define "notice.summary" -}}
{{ title .Details.Notice.MessageType }}: {{ title .Details.Notice.Title }}
{{- end -}}

{{- define "notice.note" -}}
{{ template "notices" (list .Details.Notice) }}
{{- end -}}
`

const genericTemplates = `
{{- define "generic.summary" -}}
{{ title (print .Details.Kind) }} {{ .Details.ISRS }}
{{- end -}}

{{- define "generic.note" -}}
{{ .Details.ObjectName }} ({{ .Details.ISRS }})
{{- range $key, $value := .Details.Attributes }}
{{ $key }}: {{ $value }}
{{- end }}
{{ template "notices" .Notices }}{{ template "schedule" .Schedule }}
{{- end -}}
`
