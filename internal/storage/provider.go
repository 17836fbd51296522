// Package storage defines the content directory abstraction used for
// source documents, component files and rendered output.
package storage

import "github.com/starford/mdxengine/internal/models"

// DocumentExtensions are the source document suffixes listed by default.
var DocumentExtensions = []string{".mdx", ".md"}

// ComponentExtensions are the suffixes of component definition files.
var ComponentExtensions = []string{".jsx", ".js"}

// Provider is the interface for content file operations.
type Provider interface {
	// List returns metadata for every file with a listed extension under dir
	// (relative to the root).
	List(dir string) ([]models.DocumentInfo, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the root).
	Delete(path string) error
	// Root returns the absolute root directory.
	Root() string
}
