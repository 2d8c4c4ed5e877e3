package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/gitcha"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/source"
)

// manifestChunk mirrors tts.Chunk with an optional index so positional
// numbering can fill gaps.
type manifestChunk struct {
	Index    *int               `json:"index" yaml:"index"`
	Text     string             `json:"text" yaml:"text"`
	Params   map[string]float64 `json:"parameters" yaml:"parameters"`
	Boundary string             `json:"boundary_type" yaml:"boundary_type"`
}

type manifestDoc struct {
	Chunks []manifestChunk `json:"chunks" yaml:"chunks"`
}

var manifestPatterns = []string{"*.json", "*.yaml", "*.yml", "*.md", "*.markdown"}

// loadManifest reads chunks from a JSON, YAML or markdown file, from every
// manifest below a directory, or from stdin for "-".
func loadManifest(path string) ([]tts.Chunk, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		path, err = homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("unable to expand path: %w", err)
		}
		if fi, serr := os.Stat(path); serr == nil && fi.IsDir() {
			return loadManifestDir(path)
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest: %w", err)
	}
	return parseManifest(data, filepath.Ext(path))
}

// parseManifest accepts a bare list of chunks or an object with a "chunks"
// list. ext picks the decoder: markdown is chunked by block and sentence,
// anything but .json is read as YAML, which also covers JSON input from
// stdin.
func parseManifest(data []byte, ext string) ([]tts.Chunk, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("manifest is empty")
	}

	var list []manifestChunk
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		chunks := source.Markdown(data, source.DefaultOptions())
		if len(chunks) == 0 {
			return nil, errors.New("markdown has no speakable text")
		}
		return chunks, nil
	case ".json":
		if err := json.Unmarshal(data, &list); err != nil {
			var doc manifestDoc
			if err2 := json.Unmarshal(data, &doc); err2 != nil {
				return nil, fmt.Errorf("unable to parse JSON manifest: %w", err)
			}
			list = doc.Chunks
		}
	default:
		if err := yaml.Unmarshal(data, &list); err != nil {
			var doc manifestDoc
			if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
				return nil, fmt.Errorf("unable to parse YAML manifest: %w", err)
			}
			list = doc.Chunks
		}
	}

	if len(list) == 0 {
		return nil, errors.New("manifest has no chunks")
	}

	chunks := make([]tts.Chunk, len(list))
	for i, m := range list {
		idx := i
		if m.Index != nil {
			idx = *m.Index
		}
		chunks[i] = tts.Chunk{Index: idx, Text: m.Text, Params: m.Params, Boundary: m.Boundary}
	}
	return chunks, nil
}

// findManifests lists manifest files below dir in path order, honoring
// .gitignore.
func findManifests(dir string) ([]string, error) {
	ch, err := gitcha.FindFilesExcept(dir, manifestPatterns, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var paths []string
	for res := range ch {
		if res.Info != nil && res.Info.IsDir() {
			continue
		}
		paths = append(paths, res.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

// loadManifestDir concatenates every manifest below dir. Chunks are
// renumbered by position since per-file indices would collide.
func loadManifestDir(dir string) ([]tts.Chunk, error) {
	paths, err := findManifests(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", dir)
	}

	var all []tts.Chunk
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("unable to read manifest: %w", err)
		}
		chunks, err := parseManifest(data, filepath.Ext(p))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		log.Debug("loaded manifest", "path", p, "chunks", len(chunks))
		all = append(all, chunks...)
	}
	for i := range all {
		all[i].Index = i
	}
	return all, nil
}
