package services

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/scio-helpdesk/server/models"
)

// chunkSeparators are tried largest-first; the empty string is a hard
// character cut for units that fit under no other separator.
var chunkSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// Chunk is a bounded fragment of a larger document. It carries the parent
// metadata plus its position within the split.
type Chunk struct {
	Content  string
	Metadata map[string]interface{}
}

// SplitText splits text into overlapping chunks and stamps each one with
// chunk_index and total_chunks on top of the given metadata. Empty or
// whitespace-only input yields no chunks.
func SplitText(text string, metadata map[string]interface{}, chunkSize, chunkOverlap int) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(chunkSeparators),
	)
	pieces, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunkMeta := make(map[string]interface{}, len(metadata)+2)
		for k, v := range metadata {
			chunkMeta[k] = v
		}
		chunkMeta["chunk_index"] = i
		chunkMeta["total_chunks"] = len(pieces)
		chunks = append(chunks, Chunk{Content: piece, Metadata: chunkMeta})
	}
	return chunks, nil
}

// SplitIntoDocuments chunks text and assigns each chunk a deterministic
// document ID derived from the source name and chunk ordinal.
func SplitIntoDocuments(text, source string, metadata map[string]interface{}, chunkSize, chunkOverlap int) ([]models.Document, error) {
	chunks, err := SplitText(text, metadata, chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, models.Document{
			ID:       models.GenerateDocID(chunk.Content, source, i),
			Content:  chunk.Content,
			Metadata: chunk.Metadata,
		})
	}
	return docs, nil
}
