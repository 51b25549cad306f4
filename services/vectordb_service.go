package services

import (
	"context"
	"encoding/json"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// chromaBatchSize is the provider-side upsert batch limit.
const chromaBatchSize = 100

// VectorDBService is the nearest-neighbor index boundary.
type VectorDBService interface {
	// AddDocuments embeds and upserts documents, batching transparently.
	// Returns the number of documents written.
	AddDocuments(ctx context.Context, docs []models.Document) (int, error)
	// Search embeds the query and returns the topK nearest documents with
	// raw distances, best-first.
	Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
	IsConnected(ctx context.Context) bool
	CollectionName() string
}

type chromaVectorDBService struct {
	collection chromago.Collection
	embedder   EmbeddingService
	log        *logger.Logger
}

// NewChromaVectorDBService wraps a Chroma collection behind the vector index
// boundary.
func NewChromaVectorDBService(collection chromago.Collection, embedder EmbeddingService, log *logger.Logger) VectorDBService {
	return &chromaVectorDBService{
		collection: collection,
		embedder:   embedder,
		log:        log.With("service", "VectorDBService"),
	}
}

// GetOrCreateCollection fetches or creates the knowledge-base collection.
func GetOrCreateCollection(ctx context.Context, client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "IT helpdesk knowledge base"),
				chromago.NewStringAttribute("created_by", "scio"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", name, err)
	}
	return collection, nil
}

func (s *chromaVectorDBService) AddDocuments(ctx context.Context, docs []models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed documents: %w", err)
	}

	total := 0
	for start := 0; start < len(docs); start += chromaBatchSize {
		end := start + chromaBatchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := docs[start:end]
		ids := make([]chromago.DocumentID, len(batch))
		batchTexts := make([]string, len(batch))
		batchEmbeddings := make([]embeddings.Embedding, len(batch))
		batchMetadatas := make([]chromago.DocumentMetadata, len(batch))
		for i, doc := range batch {
			ids[i] = chromago.DocumentID(doc.ID)
			batchTexts[i] = doc.Content
			batchEmbeddings[i] = embeddings.NewEmbeddingFromFloat32(vectors[start+i])
			batchMetadatas[i] = toChromaMetadata(doc.Metadata)
		}

		// Upsert keeps re-ingestion idempotent for unchanged content.
		if err := s.collection.Upsert(ctx,
			chromago.WithIDs(ids...),
			chromago.WithTexts(batchTexts...),
			chromago.WithEmbeddings(batchEmbeddings...),
			chromago.WithMetadatas(batchMetadatas...),
		); err != nil {
			return total, fmt.Errorf("failed to upsert batch into chromadb: %w", err)
		}
		total += len(batch)
		s.log.Info("Upserted batch", "done", total, "total", len(docs))
	}
	return total, nil
}

func (s *chromaVectorDBService) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	queryVector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}

	results, err := s.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(queryVector)),
		chromago.WithNResults(topK),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, chromago.Include("distances")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}

	hits := make([]models.SearchResult, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		if doc.ContentString() == "" {
			continue
		}
		var metadata map[string]interface{}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			metadata = fromChromaMetadata(metadataGroups[0][i], s.log)
		}
		var distance float64
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			distance = float64(distanceGroups[0][i])
		}
		hits = append(hits, models.SearchResult{
			Content:  doc.ContentString(),
			Metadata: metadata,
			Distance: distance,
		})
	}
	return hits, nil
}

func (s *chromaVectorDBService) Count(ctx context.Context) (int, error) {
	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

func (s *chromaVectorDBService) DeleteAll(ctx context.Context) error {
	results, err := s.collection.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents for deletion: %w", err)
	}
	ids := results.GetIDs()
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, chromago.WithIDsDelete(ids...)); err != nil {
		return fmt.Errorf("failed to delete documents from chromadb: %w", err)
	}
	s.log.Info("Deleted documents from collection", "count", len(ids))
	return nil
}

func (s *chromaVectorDBService) IsConnected(ctx context.Context) bool {
	_, err := s.collection.Count(ctx)
	return err == nil
}

func (s *chromaVectorDBService) CollectionName() string {
	return s.collection.Name()
}

// toChromaMetadata converts a plain metadata map into Chroma attributes.
func toChromaMetadata(metadata map[string]interface{}) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(key, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(key, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(key, v))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(key, v))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(key, v))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(key, fmt.Sprintf("%v", v)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromChromaMetadata converts Chroma metadata back into a plain map. The
// metadata type exposes no value accessor, so it round-trips through JSON.
func fromChromaMetadata(metadata chromago.DocumentMetadata, log *logger.Logger) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		log.Warn("Could not marshal document metadata", "error", err)
		return map[string]interface{}{}
	}
	var metadataMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metadataMap); err != nil {
		log.Warn("Could not unmarshal document metadata", "error", err)
		return map[string]interface{}{}
	}
	return metadataMap
}
