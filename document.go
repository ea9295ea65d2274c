package amd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ModuleDocument is the object form of a definition: a value module with
// an optional identifier and imports that must load before it exports.
type ModuleDocument struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Imports []string `json:"imports,omitempty" yaml:"imports,omitempty" toml:"imports,omitempty"`
	Module  any      `json:"module" yaml:"module" toml:"module"`
}

// Definition converts the document to a value definition.
func (d ModuleDocument) Definition() Definition {
	deps := d.Imports
	if deps == nil {
		deps = []string{}
	}
	return Definition{ID: d.ID, Deps: deps, Value: normalizeValue(d.Module)}
}

// DocumentExtensions are the document formats the document fetchers try,
// in order, for a module URL ending in the default extension.
var DocumentExtensions = []string{".yaml", ".yml", ".json", ".toml"}

// DecodeModuleDocuments decodes the documents in data. format is a file
// extension. YAML may hold several documents and JSON an array of them.
// Each document is checked against ModuleDocumentSchema before decoding.
func DecodeModuleDocuments(format string, data []byte) ([]ModuleDocument, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		var docs []ModuleDocument
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for {
			var node yaml.Node
			err := dec.Decode(&node)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
			}
			doc, err := decodeDocument(node.Decode)
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", len(docs), err)
			}
			docs = append(docs, doc)
		}
		return docs, nil

	case "json":
		trimmed := bytes.TrimSpace(data)
		raws := []json.RawMessage{trimmed}
		if len(trimmed) > 0 && trimmed[0] == '[' {
			raws = nil
			if err := json.Unmarshal(trimmed, &raws); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
			}
		}
		docs := make([]ModuleDocument, 0, len(raws))
		for i, raw := range raws {
			doc, err := decodeDocument(func(v any) error {
				return json.Unmarshal(raw, v)
			})
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
			docs = append(docs, doc)
		}
		return docs, nil

	case "toml":
		text := string(data)
		doc, err := decodeDocument(func(v any) error {
			_, err := toml.Decode(text, v)
			return err
		})
		if err != nil {
			return nil, err
		}
		return []ModuleDocument{doc}, nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidDocument, format)
}

// decodeDocument validates the generic form of one document, then decodes
// it into a ModuleDocument.
func decodeDocument(decode func(any) error) (ModuleDocument, error) {
	var raw any
	if err := decode(&raw); err != nil {
		return ModuleDocument{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := ValidateModuleDocument(raw); err != nil {
		return ModuleDocument{}, err
	}
	var doc ModuleDocument
	if err := decode(&doc); err != nil {
		return ModuleDocument{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return doc, nil
}

// documentCandidates lists the locations to try for a module URL: the URL
// itself when it names a document format, otherwise the URL with its
// default extension swapped for each document extension.
func documentCandidates(rawURL string) []string {
	u, query, _ := strings.Cut(rawURL, "?")
	if query != "" {
		query = "?" + query
	}
	ext := path.Ext(u)
	for _, e := range DocumentExtensions {
		if ext == e {
			return []string{rawURL}
		}
	}
	base := strings.TrimSuffix(u, DefaultExtension)
	out := make([]string, 0, len(DocumentExtensions))
	for _, e := range DocumentExtensions {
		out = append(out, base+e+query)
	}
	return out
}

// readFunc reads one candidate location. A missing location is reported
// with ErrScriptNotFound.
type readFunc func(ctx context.Context, location string) ([]byte, error)

// fetchDocuments reads the first existing candidate off the scheduler
// thread, then defines its documents on it.
func fetchDocuments(host ScriptHost, rawURL string, timeout time.Duration, read readFunc, onComplete func(string), onError func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var (
			docs []ModuleDocument
			err  = fmt.Errorf("%w: %w: %s", ErrFetchFailed, ErrScriptNotFound, rawURL)
		)
		for _, location := range documentCandidates(rawURL) {
			data, rerr := read(ctx, location)
			if errors.Is(rerr, ErrScriptNotFound) {
				continue
			}
			if rerr != nil {
				err = fmt.Errorf("%w: %s: %w", ErrFetchFailed, location, rerr)
				break
			}
			loc, _, _ := strings.Cut(location, "?")
			docs, rerr = DecodeModuleDocuments(path.Ext(loc), data)
			if rerr != nil {
				err = fmt.Errorf("%w: %s: %w", ErrFetchFailed, location, rerr)
				break
			}
			err = nil
			break
		}

		host.Defer(func() {
			if err != nil {
				onError(err)
				return
			}
			if derr := defineDocuments(host, docs); derr != nil {
				onError(fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, derr))
				return
			}
			onComplete(rawURL)
		})
	}()
}

// batchDefiner is a ScriptHost that can define several modules at once.
type batchDefiner interface {
	DefineAll(defs []Definition) error
}

// defineDocuments defines the documents of one script. Hosts that support
// it get them as a single batch, so a rejected document leaves nothing
// queued.
func defineDocuments(host ScriptHost, docs []ModuleDocument) error {
	defs := make([]Definition, len(docs))
	for i, doc := range docs {
		defs[i] = doc.Definition()
	}
	if b, ok := host.(batchDefiner); ok {
		return b.DefineAll(defs)
	}
	for _, def := range defs {
		if err := host.Define(def); err != nil {
			return err
		}
	}
	return nil
}

// HTTPFetcher loads module documents over HTTP.
type HTTPFetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(host ScriptHost, url string, timeout time.Duration, onComplete func(string), onError func(error)) {
	fetchDocuments(host, url, timeout, f.read, onComplete, onError)
}

func (f *HTTPFetcher) read(ctx context.Context, location string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrScriptNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FileFetcher loads module documents from a directory. URLs are taken as
// slash-separated paths below Root; a file:// prefix and query strings
// are ignored.
type FileFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(host ScriptHost, url string, timeout time.Duration, onComplete func(string), onError func(error)) {
	fetchDocuments(host, url, timeout, f.read, onComplete, onError)
}

func (f *FileFetcher) read(_ context.Context, location string) ([]byte, error) {
	p, _, _ := strings.Cut(location, "?")
	p = strings.TrimPrefix(p, "file://")
	if f.Root != "" && !filepath.IsAbs(filepath.FromSlash(p)) {
		p = filepath.Join(f.Root, filepath.FromSlash(p))
	} else if f.Root != "" {
		p = filepath.Join(f.Root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrScriptNotFound
	}
	return data, err
}
