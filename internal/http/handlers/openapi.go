package handlers

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"maps"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

// apiDoc is the embedded document decoded once; handlers add the
// request-specific server entry on a shallow copy.
var apiDoc = mustDecodeAPIDoc(openAPIDocument)

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}} API docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; padding: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <redoc spec-url="{{.SpecURL}}"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

type apiInfo struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

func mustDecodeAPIDoc(raw []byte) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic("handlers: invalid embedded openapi.json: " + err.Error())
	}
	return doc
}

func docInfo() apiInfo {
	info, _ := apiDoc["info"].(map[string]any)
	title, _ := info["title"].(string)
	version, _ := info["version"].(string)
	return apiInfo{Title: title, Version: version}
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// OpenAPIJSON serves the API document with the caller's origin as server.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc := maps.Clone(apiDoc)
	doc["servers"] = []map[string]string{{"url": requestOrigin(r)}}
	a.json(w, http.StatusOK, doc)
}

// OpenAPIDocs renders a Redoc page titled after the document's info block.
func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	info := docInfo()
	view := struct {
		apiInfo
		SpecURL string
	}{apiInfo: info, SpecURL: "/v1/openapi.json"}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := docsTemplate.Execute(w, view); err != nil {
		a.Logger.Error().Err(err).Msg("render api docs")
	}
}
