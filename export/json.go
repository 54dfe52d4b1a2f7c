package export

import (
	"encoding/json"
	"io"

	"github.com/smallnest/crewgraph/store"
)

// JSONExporter writes pretty-printed JSON.
type JSONExporter struct{}

// Export writes rec as JSON.
func (e *JSONExporter) Export(rec *store.SessionRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(toSession(rec))
}

// Extension returns "json".
func (e *JSONExporter) Extension() string {
	return "json"
}
