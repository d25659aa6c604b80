// Package view renders the dashboard from a store.State. Everything here is a
// pure function of the state: the page model is built first and then executed
// through the embedded templates.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/homedash/homedash/pkg/store"
	"github.com/homedash/homedash/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the stylesheet and other assets referenced by the page,
// rooted so that "style.css" is at the top.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the directory is embedded so this can only fail on a build error
		panic(fmt.Errorf("failed to get static fs: %w", err))
	}
	return sub
}

const (
	LoadingText     = "Loading smart home insights..."
	ErrorTitle      = "System Error"
	NoDevicesText   = "No devices connected"
	NoEnergyText    = "No energy data available"
	NoAlertsText    = "No active alerts"
	NoAlertsSubtext = "Your smart home systems are running smoothly"

	// en-US style used for alert times, e.g. "Jan 1, 2024, 09:00 AM"
	alertTimeLayout = "Jan 2, 2006, 03:04 PM"
)

// DeviceRow is one entry of the device list.
type DeviceRow struct {
	ID          types.ID
	Name        string
	TypeLabel   string
	Location    string
	On          bool
	StateLabel  string
	ButtonLabel string
	Reading     string
}

// AlertRow is one entry of the alert feed.
type AlertRow struct {
	ID         types.ID
	Title      string
	Message    string
	Severity   string
	Variant    string
	DeviceName string
	Time       string
	Resolved   bool
}

// AlertGroup holds the alerts of one severity.
type AlertGroup struct {
	Severity string
	Alerts   []AlertRow
}

// AlertFeed is the alert panel.
type AlertFeed struct {
	Groups     []AlertGroup
	Active     int
	CountLabel string
}

// Page is everything the dashboard template needs.
type Page struct {
	Loading  bool
	Fatal    string
	Banner   string
	Devices  []DeviceRow
	Chart    Chart
	Alerts   AlertFeed
	LoadedAt string
}

// BuildPage converts the state into the page model. Times are shown in loc.
//
// While the first load is running only the loading placeholder is shown. An
// error before anything was loaded replaces the dashboard with the error
// panel; an error after a successful load is shown as a banner above the
// last good data.
func BuildPage(state store.State, loc *time.Location) Page {
	if loc == nil {
		loc = time.Local
	}
	if state.Loading {
		return Page{Loading: true, Banner: state.Error}
	}
	if state.Error != "" && !state.Loaded() {
		return Page{Fatal: state.Error}
	}

	p := Page{
		Banner:  state.Error,
		Devices: DeviceRows(state.Devices),
		Chart:   BuildChart(state.Energy, loc),
		Alerts:  BuildAlertFeed(state.Alerts, loc),
	}
	if state.Loaded() {
		p.LoadedAt = state.LoadedAt.In(loc).Format(alertTimeLayout)
	}
	return p
}

// DeviceRows builds the device list in the order the backend returned it.
func DeviceRows(devices []types.Device) []DeviceRow {
	rows := make([]DeviceRow, 0, len(devices))
	for _, d := range devices {
		row := DeviceRow{
			ID:        d.ID,
			Name:      d.Name,
			TypeLabel: d.Type.Label(),
			Location:  d.Location,
			On:        d.IsOn(),
		}
		state := d.CurrentState
		if state == "" {
			state = types.DeviceStateOff
		}
		row.StateLabel = strings.ToUpper(string(state))
		if row.On {
			row.ButtonLabel = "Turn Off"
		} else {
			row.ButtonLabel = "Turn On"
		}
		if d.LastReading != nil {
			row.Reading = fmt.Sprintf("%.1f", *d.LastReading)
		}
		rows = append(rows, row)
	}
	return rows
}

// severityOrder is the order groups are shown in; unknown severities follow
// in the order they first appear.
var severityOrder = []types.Severity{
	types.SeverityDanger,
	types.SeverityError,
	types.SeverityWarning,
	types.SeverityInfo,
}

// BadgeVariant maps a severity to the badge style used for it.
func BadgeVariant(s types.Severity) string {
	switch s {
	case types.SeverityDanger, types.SeverityError:
		return "destructive"
	case types.SeverityWarning:
		return "warning"
	default:
		return "secondary"
	}
}

// BuildAlertFeed groups alerts by severity, keeping backend order within a
// group.
func BuildAlertFeed(alerts []types.Alert, loc *time.Location) AlertFeed {
	if loc == nil {
		loc = time.Local
	}
	var feed AlertFeed
	bySeverity := make(map[types.Severity][]AlertRow)
	var unknown []types.Severity
	known := make(map[types.Severity]bool, len(severityOrder))
	for _, s := range severityOrder {
		known[s] = true
	}

	for _, a := range alerts {
		sev := a.Severity
		if sev == "" {
			sev = types.SeverityInfo
		}
		if !known[sev] && bySeverity[sev] == nil {
			unknown = append(unknown, sev)
		}
		row := AlertRow{
			ID:         a.ID,
			Title:      a.Title,
			Message:    a.Message,
			Severity:   string(sev),
			Variant:    BadgeVariant(sev),
			DeviceName: a.DeviceName,
			Resolved:   a.Resolved,
		}
		if row.DeviceName == "" && a.Device != nil {
			row.DeviceName = a.Device.Name
		}
		if !a.Timestamp.IsZero() {
			row.Time = a.Timestamp.In(loc).Format(alertTimeLayout)
		}
		bySeverity[sev] = append(bySeverity[sev], row)
		if !a.Resolved {
			feed.Active++
		}
	}

	for _, s := range append(append([]types.Severity{}, severityOrder...), unknown...) {
		if rows := bySeverity[s]; len(rows) > 0 {
			feed.Groups = append(feed.Groups, AlertGroup{Severity: string(s), Alerts: rows})
		}
	}
	if feed.Active > 0 {
		feed.CountLabel = fmt.Sprintf("%d Active Alerts", feed.Active)
	}
	return feed
}

// Renderer executes the dashboard templates.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
}

// New parses the embedded templates. A nil loc uses the local time zone.
func New(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"loadingText":     func() string { return LoadingText },
		"errorTitle":      func() string { return ErrorTitle },
		"noDevicesText":   func() string { return NoDevicesText },
		"noEnergyText":    func() string { return NoEnergyText },
		"noAlertsText":    func() string { return NoAlertsText },
		"noAlertsSubtext": func() string { return NoAlertsSubtext },
		"pathEscape":      url.PathEscape,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, loc: loc}, nil
}

// Render writes the full dashboard page for the state.
func (r *Renderer) Render(w io.Writer, state store.State) error {
	return r.RenderPage(w, BuildPage(state, r.loc))
}

// RenderPage writes the full page for an already built model.
func (r *Renderer) RenderPage(w io.Writer, p Page) error {
	if err := r.tmpl.ExecuteTemplate(w, "page", p); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}
