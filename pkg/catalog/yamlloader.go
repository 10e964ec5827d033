package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a catalog seed YAML file.
//
// Example:
//
//	catalog:
//	  name: "Leroy Merlin Paris 2025"
//	  currency: EUR
//	materials:
//	  - id: mat-0001
//	    name: "HydroFix Waterproof Adhesive"
//	    description: "Waterproof tile adhesive for bathrooms"
//	    unit_price: 18.90
//	    unit: kg
//	    region: Île-de-France
//	    vendor: Leroy Merlin
//	    category: adhesives
//	    quality_score: 8
type File struct {
	Catalog   Meta             `yaml:"catalog"`
	Materials []MaterialRecord `yaml:"materials"`
}

// Meta describes the origin of a seed file.
type Meta struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

// LoadFile reads and parses a catalog seed file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open seed file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse seed file %q: %w", path, err)
	}
	return cf, nil
}

// LoadFromReader parses catalog YAML from r. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	for i := range cf.Materials {
		if cf.Materials[i].Category == "" {
			cf.Materials[i].Category = CategoryOther
		}
	}
	return &cf, nil
}

// EmbedFunc computes embeddings for a batch of texts.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Import embeds records that lack a vector (when embed is non-nil) and
// upserts everything in cf into w. It returns the number of records written.
func Import(ctx context.Context, w Writer, cf *File, embed EmbedFunc) (int, error) {
	if cf == nil {
		return 0, fmt.Errorf("catalog: seed file must not be nil")
	}
	records := cf.Materials
	if embed != nil {
		var (
			idx   []int
			texts []string
		)
		for i, r := range records {
			if len(r.Embedding) == 0 {
				idx = append(idx, i)
				texts = append(texts, r.EmbeddingText())
			}
		}
		if len(texts) > 0 {
			vecs, err := embed(ctx, texts)
			if err != nil {
				return 0, fmt.Errorf("catalog: import %q: embed %d records: %w", cf.Catalog.Name, len(texts), err)
			}
			if len(vecs) != len(texts) {
				return 0, fmt.Errorf("catalog: import %q: got %d embeddings for %d records", cf.Catalog.Name, len(vecs), len(texts))
			}
			for j, i := range idx {
				records[i].Embedding = vecs[j]
			}
		}
	}
	if err := w.Upsert(ctx, records...); err != nil {
		return 0, fmt.Errorf("catalog: import %q: %w", cf.Catalog.Name, err)
	}
	return len(records), nil
}
