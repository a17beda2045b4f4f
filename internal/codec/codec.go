// Package codec reads and writes note trees in interchange formats.
package codec

import (
	"fmt"
	"io"
	"sort"

	"fractalnote/internal/domain"
	"fractalnote/internal/store"
)

// Document is a tree as exchanged with the outside: the hierarchy and the
// token it was read at, plus any integrity findings.
type Document struct {
	Token      store.Token        `json:"token,omitempty" yaml:"token,omitempty"`
	Roots      []*domain.TreeNode `json:"roots" yaml:"roots"`
	Orphans    []*domain.TreeNode `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// NewDocument wraps a built tree
func NewDocument(tree *domain.Tree, tok store.Token) *Document {
	return &Document{Token: tok, Roots: tree.Roots, Orphans: tree.Orphans}
}

// Len counts the nodes reachable from the document's roots
func (d *Document) Len() int {
	n := 0
	stack := append([]*domain.TreeNode(nil), d.Roots...)
	for len(stack) > 0 {
		tn := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		stack = append(stack, tn.Children...)
	}
	return n
}

// Importer interface for importing note trees from various formats
type Importer interface {
	Parse(r io.Reader) (*Document, error)
	Format() string
}

// Exporter interface for exporting note trees to various formats
type Exporter interface {
	Export(doc *Document, w io.Writer) error
	Format() string
}

// Codec both imports and exports
type Codec interface {
	Importer
	Exporter
}

var codecs = map[string]Codec{
	"json": NewJSONCodec(),
	"yaml": NewYAMLCodec(),
	"yml":  NewYAMLCodec(),
}

// ForFormat returns the codec registered for a format name
func ForFormat(format string) (Codec, error) {
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (want one of %v): %w", format, Formats(), domain.ErrInvalidArgument)
	}
	return c, nil
}

// Formats lists the registered format names
func Formats() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
