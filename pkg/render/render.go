// Package render implements the engine's template renderer on Go's
// text/template. Template directories are copied file by file into a
// per-call output directory with the supplied context substituted; callers
// pass the output directory on to helm or kubectl without inspecting it.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// DirRenderer renders every file of a template directory into a fresh
// temporary directory. Implements engine.Renderer.
type DirRenderer struct {
	// workDir is the parent of all rendered output directories. Each Render
	// call creates its own subdirectory so concurrent transactions never
	// share output paths.
	workDir string
	logger  *telemetry.Logger
}

// NewDirRenderer creates a renderer writing under workDir. An empty workDir
// uses the system temp directory.
func NewDirRenderer(workDir string, logger *telemetry.Logger) *DirRenderer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &DirRenderer{
		workDir: workDir,
		logger:  logger.NewComponentLogger("render"),
	}
}

// Render implements engine.Renderer.
func (r *DirRenderer) Render(ctx context.Context, templateDir string, context map[string]interface{}) (string, error) {
	info, err := os.Stat(templateDir)
	if err != nil || !info.IsDir() {
		return "", engine.NewExecutionError(
			fmt.Sprintf("template directory %q is not available", templateDir), err)
	}

	outDir, err := os.MkdirTemp(r.workDir, "rendered-*")
	if err != nil {
		return "", engine.NewExecutionError("could not create render output directory", err)
	}

	walkErr := filepath.Walk(templateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(outDir, rel)

		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return r.renderFile(path, dest, context)
	})
	if walkErr != nil {
		// Partial output is never handed to the caller.
		_ = os.RemoveAll(outDir)
		return "", engine.NewExecutionError(
			fmt.Sprintf("rendering templates from %q failed", templateDir), walkErr)
	}

	r.logger.Debugf("rendered %s into %s", templateDir, outDir)
	return outDir, nil
}

func (r *DirRenderer) renderFile(src, dest string, context map[string]interface{}) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	// Files without template markers are copied untouched so binary chart
	// assets survive rendering.
	if !strings.Contains(string(raw), "{{") {
		return os.WriteFile(dest, raw, 0o644)
	}

	tmpl, err := template.New(filepath.Base(src)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parsing template %s: %w", src, err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := tmpl.Execute(out, context); err != nil {
		return fmt.Errorf("executing template %s: %w", src, err)
	}
	return nil
}
