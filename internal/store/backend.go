package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"whatsapp-autoresponder/internal/models"

	"gopkg.in/yaml.v3"
)

// Backend persists the configuration document. Implementations only read and
// replace whole documents; the Store serializes every call.
type Backend interface {
	Load(ctx context.Context) (models.Document, error)
	Save(ctx context.Context, doc models.Document) error
}

// FileBackend keeps the document in a single JSON or YAML file, picked by
// extension. Legacy documents from the first deployment are converted on read.
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (b *FileBackend) isYAML() bool {
	switch strings.ToLower(filepath.Ext(b.Path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (b *FileBackend) Load(ctx context.Context) (models.Document, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", b.Path, err)
	}
	if b.isYAML() {
		if data, err = yamlToJSON(data); err != nil {
			return models.Document{}, fmt.Errorf("decode yaml %s: %w", b.Path, err)
		}
	}
	if IsLegacy(data) {
		return DecodeLegacy(bytes.NewReader(data))
	}

	// Keys missing from older documents keep their defaults; only an explicit
	// value overrides them.
	doc := models.DefaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Document{}, fmt.Errorf("decode %s: %w", b.Path, err)
	}
	doc.Normalize()
	return doc, nil
}

func (b *FileBackend) Save(ctx context.Context, doc models.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if b.isYAML() {
		if data, err = jsonToYAML(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(b.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.Path)
}

// yamlToJSON routes YAML through a generic value so the JSON tags on the
// models stay the single source of field names.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

func jsonToYAML(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return yaml.Marshal(unquoteNumbers(v))
}

// unquoteNumbers turns json.Number leaves into int64 or float64. yaml.v3
// would otherwise emit them as quoted strings.
func unquoteNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = unquoteNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = unquoteNumbers(e)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
