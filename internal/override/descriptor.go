package override

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Descriptor is a declarative override attached to a test.
//
// Position orders descriptors of the same origin; ties keep declaration
// order.
type Descriptor struct {
	Kind     Kind   `yaml:"kind"`
	Target   string `yaml:"target"`
	Value    any    `yaml:"value,omitempty"`
	Origin   Origin `yaml:"origin,omitempty"`
	Position int    `yaml:"position,omitempty"`
}

// Validate checks d in isolation.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("unknown override kind %q", d.Kind)
	}
	if d.Origin != "" && !d.Origin.Declarative() {
		return fmt.Errorf("descriptor origin must be annotation or attribute, got %q", d.Origin)
	}
	if d.Target == "" {
		return fmt.Errorf("%s override requires a target", d.Kind)
	}
	return nil
}

// Normalize validates descriptors and converts them into registry requests,
// ordered by origin then position. A missing origin means attribute.
func Normalize(descriptors []Descriptor) ([]Request, error) {
	reqs := make([]Request, 0, len(descriptors))
	var errs []error
	for i, d := range descriptors {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("declaration %d: %w", i, err))
			continue
		}
		origin := d.Origin
		if origin == "" {
			origin = OriginAttribute
		}
		reqs = append(reqs, Request{
			Kind:     d.Kind,
			Target:   d.Target,
			Value:    d.Value,
			Origin:   origin,
			Position: d.Position,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(reqs, func(i, j int) bool {
		if ri, rj := reqs[i].Origin.Rank(), reqs[j].Origin.Rank(); ri != rj {
			return ri < rj
		}
		return reqs[i].Position < reqs[j].Position
	})
	return reqs, nil
}

// declarationFile is the on-disk form of a declaration list.
type declarationFile struct {
	Declarations []Descriptor `yaml:"declarations"`
}

// ParseDeclarations decodes a YAML declaration document. Unknown fields are
// rejected so typos surface instead of being ignored.
func ParseDeclarations(data []byte) ([]Descriptor, error) {
	var file declarationFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse declarations: %w", err)
	}
	for i, d := range file.Declarations {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
	}
	return file.Declarations, nil
}
