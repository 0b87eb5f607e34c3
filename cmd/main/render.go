package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/loomkit/loom/pkg/loom"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// runRender compiles and renders a single template from the configured
// template directory and writes the output to outPath, or stdout when outPath
// is empty. Locals come from an optional YAML file.
func runRender(logger *slog.Logger, configPath, name, localsPath, outPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	locals, err := loadLocals(localsPath)
	if err != nil {
		return err
	}

	opts := config.Engine.Options()
	opts.Loader = &loom.FileLoader{Dir: config.Server.TemplateDir, Ext: config.Server.TemplateExt}

	tpl, err := loom.CompileFile(context.Background(), name, opts)
	if err != nil {
		return fmt.Errorf("failed to compile template %q: %w", name, err)
	}

	out, err := tpl.Render(locals)
	if err != nil {
		return fmt.Errorf("failed to render template %q: %w", name, err)
	}

	if config.Server.RenderMarkdown && strings.HasSuffix(name, ".md") {
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		var html bytes.Buffer
		if err = md.Convert([]byte(out), &html); err != nil {
			return fmt.Errorf("failed to convert markdown: %w", err)
		}
		out = html.String()
	}

	if outPath == "" {
		_, err = os.Stdout.WriteString(out)
		return err
	}
	if err = os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	logger.Info("Rendered template", "template", name, "output", outPath, "bytes", len(out))
	return nil
}

// loadLocals parses a YAML mapping into render locals. An empty path means no
// locals.
func loadLocals(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locals file: %w", err)
	}
	locals := make(map[string]any)
	if err = yaml.Unmarshal(data, &locals); err != nil {
		return nil, fmt.Errorf("failed to parse locals file: %w", err)
	}
	return locals, nil
}
