package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s logic.State) string {
		switch s {
		case logic.StateActive, logic.StateConnectedActive:
			return "active"
		case logic.StateIdle, logic.StateConnectedIdle:
			return "idle"
		}
		return "unknown"
	},
	"magnitude": logic.Magnitude,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>{{.Settings.Name}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Settings.Name}}{{if .Settings.Demo}} (demo){{end}}</h1>

<h2>Power</h2>
<table>
<tr><th>State</th><td id="power-state" class="{{stateClass .State}}">{{if .State}}{{.State}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Peer</th><td class="{{if .Link.Connected}}connected{{else}}disconnected{{end}}">{{if .Link.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Last disconnect reason</th><td>{{printf "0x%02x" .Link.LastReason}}</td></tr>
{{with .LastSample}}<tr><th>Last sample</th><td>x={{.X}} y={{.Y}} z={{.Z}} mg (magnitude {{magnitude .}})</td></tr>{{end}}
</table>

<h2>Configuration</h2>
<table>
<tr><th>Notify rate</th><td>{{.Config.NotifyRateHz}} Hz</td></tr>
<tr><th>Active timeout</th><td>{{.Config.ActiveTimeoutMs}}ms</td></tr>
<tr><th>Range</th><td>{{.Config.AccelRange}}</td></tr>
<tr><th>Motion threshold</th><td>{{.Config.MotionThreshold}}</td></tr>
<tr><th>Advertising (idle / active)</th><td>{{.Config.AdvIntervalIdleMs}}ms / {{.Config.AdvIntervalActiveMs}}ms</td></tr>
<tr><th>Stream mode</th><td>{{.Config.StreamMode}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
<tr><th>Samples</th><td>{{.Counts.Samples}} ({{.Counts.ReadErrors}} read errors)</td></tr>
<tr><th>Notifications</th><td>{{.Counts.Sent}} sent, {{.Counts.Dropped}} dropped</td></tr>
<tr><th>Promotions</th><td>{{.Counts.Promotions}}</td></tr>
<tr><th>Interrupts</th><td>{{.Counts.Interrupts}}</td></tr>
<tr><th>Degraded applies</th><td>{{.Counts.DegradedApplies}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{if .Settings.Broker}} ({{.Settings.Broker}}){{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Settings.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
