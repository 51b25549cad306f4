package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Document is a unit of knowledge-base content headed for the vector index.
// The ID is derived from the content so re-ingesting unchanged data upserts
// instead of duplicating.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SourceDocument is the citation-facing projection of a retrieved document.
type SourceDocument struct {
	Content        string                 `json:"content"`
	Source         string                 `json:"source"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	RelevanceScore float64                `json:"relevance_score"`
}

// SearchResult is one raw nearest-neighbor hit from the vector index.
// Distance semantics depend on the collection's metric.
type SearchResult struct {
	Content  string
	Metadata map[string]interface{}
	Distance float64
}

// GenerateDocID returns a deterministic document ID from the source name,
// the ordinal within that source and a prefix of the content.
func GenerateDocID(content, source string, index int) string {
	prefix := content
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", source, index, prefix)))
	return hex.EncodeToString(sum[:])
}
