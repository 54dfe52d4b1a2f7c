package export

import (
	"io"

	"github.com/smallnest/crewgraph/store"
	"gopkg.in/yaml.v3"
)

// YAMLExporter writes YAML.
type YAMLExporter struct{}

// Export writes rec as YAML.
func (e *YAMLExporter) Export(rec *store.SessionRecord, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(toSession(rec))
}

// Extension returns "yaml".
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
