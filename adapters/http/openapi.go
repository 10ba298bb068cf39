package http

import (
	_ "embed"
	"net/http"

	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPIDoc []byte

// openAPISpec exposes the embedded document through the swag registry,
// which also backs /swagger/doc.json.
type openAPISpec struct{}

func (openAPISpec) ReadDoc() string { return string(openAPIDoc) }

func init() {
	swag.Register(swag.Name, openAPISpec{})
}

func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "openapi document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write([]byte(doc))
}
