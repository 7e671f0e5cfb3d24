package gateway

import (
	"html/template"
	"net/http"

	"github.com/giantswarm/mailgate/internal/security"
)

// successPageTemplate is shown after the callback set the session
// cookie. The page is static; the session itself travels only in the
// cookie.
const successPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Email Account Connected</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1a1a2e;
            color: #fff;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .container { text-align: center; padding: 2rem; max-width: 480px; }
        .icon { font-size: 3rem; }
        h1 { margin: 1rem 0 0.5rem; font-size: 1.5rem; }
        p { color: #aab; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">&#10003;</div>
        <h1>Email account connected</h1>
        <p>Authorization completed. You can close this window.</p>
    </div>
</body>
</html>`

// errorPageTemplate renders the provider's error code. The template
// engine escapes the query value, so a crafted error parameter cannot
// inject markup.
const errorPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authorization Failed</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1a1a2e;
            color: #fff;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        .container { text-align: center; padding: 2rem; max-width: 480px; }
        .icon { font-size: 3rem; color: #e94560; }
        h1 { margin: 1rem 0 0.5rem; font-size: 1.5rem; }
        p { color: #aab; }
        code { background: #16213e; padding: 0.2rem 0.5rem; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">&#10007;</div>
        <h1>Authorization failed</h1>
        {{if .ErrorCode}}<p>The provider reported: <code>{{.ErrorCode}}</code></p>{{end}}
        <p>Return to the application and try connecting again.</p>
    </div>
</body>
</html>`

var (
	successPage = template.Must(template.New("success").Parse(successPageTemplate))
	errorPage   = template.Must(template.New("error").Parse(errorPageTemplate))
)

type errorPageData struct {
	ErrorCode string
}

// ServeSuccess handles GET /oauth/success.
func (h *Handler) ServeSuccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := successPage.Execute(w, nil); err != nil {
		h.logger.Error("Failed to render success page", "error", err)
	}
}

// ServeError handles GET /oauth/error?error=..., the landing page for
// provider-denied callbacks.
func (h *Handler) ServeError(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := errorPageData{ErrorCode: r.URL.Query().Get("error")}
	if err := errorPage.Execute(w, data); err != nil {
		h.logger.Error("Failed to render error page", "error", err)
	}
}
