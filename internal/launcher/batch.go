package launcher

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"
)

//go:embed templates/slurm.batch.tmpl
var defaultBatchTemplate string

// BatchParams are the values available to a batch template.
type BatchParams struct {
	SimulationID  int
	Nodes         int
	Cores         int
	Timesteps     int
	WorkDir       string
	OutputPath    string
	OutlinePath   string
	HostsPath     string
	StartedPath   string
	ScorePath     string
	SolverCommand string
}

// Renderer produces batch files from a text/template.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the template at path, or the built-in Slurm template
// when path is empty.
func NewRenderer(path string) (*Renderer, error) {
	src := defaultBatchTemplate
	name := "slurm.batch"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read batch template: %w", err)
		}
		src, name = string(b), path
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse batch template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the template.
func (r *Renderer) Render(p BatchParams) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render batch file for simulation %d: %w", p.SimulationID, err)
	}
	return buf.Bytes(), nil
}
