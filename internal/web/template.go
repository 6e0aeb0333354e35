package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/vendo/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vending Machine</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.lcd { background: #1d3b1d; color: #9f9; padding: 8px; white-space: pre; display: inline-block; }
.idle { color: #888; }
.busy { color: green; font-weight: bold; }
.empty { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Vending Machine{{if .ShuttingDown}} (shutting down){{end}}</h1>

<div class="lcd">{{index .Display 0}}
{{index .Display 1}}</div>

<h2>Credit</h2>
<table>
<tr><th>Balance</th><td id="credit">{{.Credit}}</td></tr>
<tr><th>Collected</th><td>{{.MoneyCollected}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>Cost</th><th>Stock</th><th>State</th><th>Last</th></tr>
{{range .Channels}}<tr>
<td>{{.ID}}{{if .Name}} ({{.Name}}){{end}}</td>
<td>{{.Cost}}</td>
<td class="{{if eq .Stock 0}}empty{{end}}">{{.Stock}}</td>
<td class="{{if eq (stateOrUnknown .State) "IDLE"}}idle{{else}}busy{{end}}">{{stateOrUnknown .State}}</td>
<td>{{.LastOutcome}}</td>
</tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Coins accepted</th><td>{{.Counts.CoinsAccepted}}</td></tr>
<tr><th>Coins rejected</th><td>{{.Counts.CoinsRejected}}</td></tr>
<tr><th>Dispensed</th><td>{{.Counts.Dispensed}}</td></tr>
<tr><th>Timed out</th><td>{{.Counts.TimedOut}}</td></tr>
<tr><th>Aborted</th><td>{{.Counts.Aborted}}</td></tr>
<tr><th>Rejected</th><td>{{.Counts.Rejected}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Remote</th><td class="{{if .RemoteConnected}}connected{{else}}disconnected{{end}}">{{if .RemoteConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Coin tolerance</th><td>{{.Config.CoinTolerance}}</td></tr>
<tr><th>Burst gap</th><td>{{.Config.BurstGapMs}}ms</td></tr>
<tr><th>Dispense timeout</th><td>{{.Config.DispenseTimeoutMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
