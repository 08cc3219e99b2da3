package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/dispatcher"
	"github.com/morezero/cephapi/pkg/registry"
)

const httpLogPrefix = "server:http"

// maxBodyBytes bounds request bodies; crush maps sent as inbuf stay well below it.
const maxBodyBytes = 8 << 20

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /commands", s.handleListCommands)
	mux.HandleFunc("GET /commands/{name}", s.handleDescribeCommand)
	mux.HandleFunc("POST /commands/{name}", s.handleRunCommand)
	mux.HandleFunc("POST /dispatch", s.handleDispatch)
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	return mux
}

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status    string          `json:"status"`
	Release   string          `json:"release"`
	Commands  int             `json:"commands"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Release:   s.reg.Release(),
		Commands:  s.reg.Len(),
		Checks:    map[string]bool{"registry": s.reg.Sealed()},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil {
		h.Checks["comms"] = s.nc.IsConnected()
	}
	if s.repo != nil {
		h.Checks["database"] = s.repo.Ping(ctx) == nil
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List(r.URL.Query().Get("module")))
}

func (s *Server) handleDescribeCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.reg.Lookup(r.PathValue("name"))
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// handleRunCommand dispatches the named command with the JSON body as its args.
func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeEnvelope(w, invalidRequest("", fmt.Sprintf("read body: %v", err)))
		return
	}
	args := map[string]interface{}{}
	if len(body) > 0 {
		if err := commsutil.DecodePayload(body, &args); err != nil {
			writeEnvelope(w, invalidRequest("", fmt.Sprintf("body must be a JSON object of arguments: %v", err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	writeEnvelope(w, s.disp.Handle(ctx, &dispatcher.Request{
		ID:      r.Header.Get("X-Request-Id"),
		Command: r.PathValue("name"),
		Args:    args,
	}))
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeEnvelope(w, invalidRequest("", fmt.Sprintf("read body: %v", err)))
		return
	}
	req, err := dispatcher.DecodeRequest(body)
	if err != nil {
		writeEnvelope(w, invalidRequest("", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	writeEnvelope(w, s.disp.Handle(ctx, req))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(s.reg.Release(), s.reg.List("")))
}

// homePageTemplate is the HTML for the home page: release, health and command families.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>cephapi</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a, h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
  </style>
</head>
<body>
  <h1>cephapi</h1>
  <p>Release <strong>{{.Health.Release}}</strong>, {{.Health.Commands}} commands.
     Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span>.
     <a href="/openapi.json">OpenAPI</a></p>

  <h2>Command families</h2>
  <table>
    <thead><tr><th>Module</th><th>Commands</th></tr></thead>
    <tbody>
      {{range .Modules}}
      <tr><td><a href="/commands?module={{.Name}}">{{.Name}}</a></td><td>{{.Count}}</td></tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
`

type moduleRow struct {
	Name  string
	Count int
}

type homeData struct {
	Health  *HealthOutput
	Modules []moduleRow
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.health(ctx)}
		for _, m := range s.reg.Modules() {
			data.Modules = append(data.Modules, moduleRow{Name: m, Count: len(s.reg.List(m))})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// --- helpers ---

func invalidRequest(id, message string) *dispatcher.Response {
	return &dispatcher.Response{
		ID: id,
		Error: &dispatcher.ErrorDetail{
			Code:    dispatcher.CodeInvalidRequest,
			Message: message,
		},
	}
}

// statusFor maps an envelope error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case dispatcher.CodeInvalidRequest, registry.CodeInvalidArgument:
		return http.StatusBadRequest
	case registry.CodeUnknownCommand:
		return http.StatusNotFound
	case dispatcher.CodeCommandFailed:
		return http.StatusUnprocessableEntity
	case registry.CodeTransportError, registry.CodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, resp *dispatcher.Response) {
	code := ""
	if resp.Error != nil {
		code = resp.Error.Code
	}
	writeJSON(w, statusFor(code), resp)
}

func writeError(w http.ResponseWriter, id string, err error) {
	resp := &dispatcher.Response{ID: id, Error: &dispatcher.ErrorDetail{Code: registry.Code(err), Message: err.Error()}}
	if resp.Error.Code == "" {
		resp.Error.Code = dispatcher.CodeInternalError
	}
	writeEnvelope(w, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", httpLogPrefix, err))
	}
}
