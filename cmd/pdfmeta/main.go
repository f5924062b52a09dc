// Command pdfmeta inspects and edits the metadata store embedded in a PDF.
//
// Usage:
//
//	pdfmeta -in doc.pdf -dump                   # current document as JSON
//	pdfmeta -in doc.pdf -dump-all -raw          # forensic scan of all snapshots
//	pdfmeta -in doc.pdf -out new.pdf -apply ops.yaml
//
// The operations file is a YAML list applied in order:
//
//	- op: add
//	  name: sig
//	  ns: ""
//	  content: {x: 1}
//	- op: edit
//	  name: sig
//	  all: true
//	  patch: {x: 2}
//	- op: remove
//	  id: 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pdfmeta/meta"
)

func main() {
	in := flag.String("in", "", "input PDF file")
	out := flag.String("out", "", "output PDF file (required with -apply)")
	dump := flag.Bool("dump", false, "print the current metadata document as JSON")
	dumpAll := flag.Bool("dump-all", false, "scan every committed snapshot and print the report")
	raw := flag.Bool("raw", false, "include raw payload text in -dump-all output")
	apply := flag.String("apply", "", "YAML operations file to apply")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *in, *out, *apply, *dump, *dumpAll, *raw); err != nil {
		logger.Error("pdfmeta: fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, in, out, apply string, dump, dumpAll, raw bool) error {
	if in == "" {
		fmt.Fprintln(os.Stderr, "usage: pdfmeta -in <file> [-dump | -dump-all [-raw] | -apply <ops.yaml> -out <file>]")
		os.Exit(1)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	s, err := meta.Open(data, meta.Config{Logger: logger})
	if err != nil {
		return err
	}
	if s.Corrupt() {
		logger.Warn("pdfmeta: prior metadata unreadable, working from a fresh document", "file", in)
	}

	switch {
	case dumpAll:
		return printJSON(s.DumpAll(meta.DumpOptions{IncludeRaw: raw}))
	case dump:
		return printJSON(s.Dump())
	case apply != "":
		if out == "" {
			return fmt.Errorf("-apply requires -out")
		}
		return applyOps(logger, s, apply, out)
	default:
		return printJSON(s.Dump())
	}
}

// op is one YAML-described mutation.
type op struct {
	Op      string         `yaml:"op"` // add, edit, remove
	Name    string         `yaml:"name"`
	ID      *int           `yaml:"id"`
	NS      *string        `yaml:"ns"`
	All     bool           `yaml:"all"` // edit/remove every match instead of the first
	Content map[string]any `yaml:"content"`
	Patch   map[string]any `yaml:"patch"`
}

func applyOps(logger *slog.Logger, s *meta.Store, path, out string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var ops []op
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for i, o := range ops {
		switch o.Op {
		case "add":
			ns := ""
			if o.NS != nil {
				ns = *o.NS
			}
			rec := s.Add(o.Name, o.Content, ns)
			logger.Info("pdfmeta: added", "id", rec.ID, "name", rec.Name, "ns", rec.NS)
		case "edit":
			var ok bool
			if o.ID != nil {
				ok = s.EditByID(*o.ID, o.Patch, o.NS)
			} else {
				ok = s.EditByName(o.Name, o.Patch, !o.All, o.NS)
			}
			if !ok {
				logger.Warn("pdfmeta: edit matched nothing", "index", i, "name", o.Name)
			}
		case "remove":
			var ok bool
			if o.ID != nil {
				ok = s.RemoveByID(*o.ID, o.NS)
			} else {
				ok = s.RemoveByName(o.Name, o.All, o.NS)
			}
			if !ok {
				logger.Warn("pdfmeta: remove matched nothing", "index", i, "name", o.Name)
			}
		default:
			return fmt.Errorf("ops[%d]: unknown op %q", i, o.Op)
		}
	}

	updated, err := s.PDF()
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, updated, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("pdfmeta: written", "file", out, "version", s.Version(), "records", s.Len())
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}
