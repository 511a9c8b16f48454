package recce

import (
	"html/template"
	"net/http"
	"strings"
)

// shellTemplate is the single page the shell serves. The client script
// connects to the WebSocket endpoint, replays the address bar path in its
// hello, and applies the patch stream beneath the #app root. Slot
// containers live under that root for the whole session; the server only
// ever toggles their hidden attribute.
var shellTemplate = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Recce</title>
{{if .CSRFToken}}<meta name="recce-csrf" content="{{.CSRFToken}}">{{end}}
<meta name="recce-ws" content="{{.WebSocketPath}}">
</head>
<body>
<div id="app" data-hid="app"></div>
<script src="/_recce/client.js" defer></script>
</body>
</html>
`))

type shellData struct {
	WebSocketPath string
	CSRFToken     string
}

// serveShell renders the shell page. Any GET path gets the same page; the
// client hands the path to the server in its hello and the navigation
// pipeline decides what it shows. Unknown paths are therefore not a 404
// at the HTTP layer.
func (a *App) serveShell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Dotted segments are asset requests gone astray, not navigations.
	if strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	data := shellData{WebSocketPath: a.config.WebSocketPath}
	if len(a.config.Security.CSRFSecret) > 0 {
		token, err := a.server.GenerateCSRFToken()
		if err != nil {
			a.logger.Error("csrf token generation failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		a.server.SetCSRFCookie(w, token)
		data.CSRFToken = token
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shellTemplate.Execute(w, data); err != nil {
		a.logger.Error("shell render failed", "error", err)
	}
}
