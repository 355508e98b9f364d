// Package main provides metavalidate-cli, a command-line front end to the
// validation and cross-reference engine for local/offline use: it reads a
// bibjson document from a file or stdin, runs it through the same
// Phase A/B/C pipeline the HTTP server uses, and prints the resulting
// FieldSets as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/correlator-io/metavalidate/internal/validate/engine"
	"github.com/correlator-io/metavalidate/internal/validate/registry"

	_ "github.com/correlator-io/metavalidate/internal/ingestion"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/dates"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/doi"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/issn"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/language"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/number"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/orcid"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/text"
	_ "github.com/correlator-io/metavalidate/internal/validate/plugins/textdistance"
)

const (
	version = "1.0.0-dev"
	name    = "metavalidate-cli"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	modeltype := flag.String("modeltype", "bibjson", "document modeltype to validate")
	inputPath := flag.String("file", "", "path to the document to validate (defaults to stdin)")
	workers := flag.Int("workers", 1, "values validated concurrently per field (1 disables concurrency)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	input, err := openInput(*inputPath)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	defer input.Close()

	eng := engine.New(registry.Default, engine.WithWorkers(*workers))

	ctx := context.Background()

	fieldsets, err := eng.Generate(ctx, *modeltype, input)
	if err != nil {
		log.Fatalf("%s: generate: %v", name, err)
	}

	for _, fs := range fieldsets {
		eng.ValidateFieldSet(ctx, fs)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(fieldsets); err != nil {
		log.Fatalf("%s: encode: %v", name, err)
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(os.Stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return file, nil
}
