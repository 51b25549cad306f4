package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scio-helpdesk/server/logger"
)

// Ingestion lifecycle errors.
var (
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	ErrNoDocumentsLoaded   = errors.New("no documents loaded from datasets")
)

// IngestionPhase is one state of the ingestion state machine.
type IngestionPhase string

const (
	IngestionIdle      IngestionPhase = "idle"
	IngestionRunning   IngestionPhase = "running"
	IngestionCompleted IngestionPhase = "completed"
	IngestionFailed    IngestionPhase = "failed"
)

// IngestionStatus is a read-only snapshot of the ingestion state machine.
// Advisory only: it resets on process restart.
type IngestionStatus struct {
	Phase          IngestionPhase
	StartedAt      *time.Time
	LastIngestion  *time.Time
	LastError      string
	DocumentsCount int
}

// IngestionService loads datasets into the vector index. At most one run is
// in flight per process; a concurrent request is rejected, not queued.
type IngestionService struct {
	loader      *DataLoader
	vectordb    VectorDBService
	datasetPath string
	log         *logger.Logger

	mu     sync.Mutex
	status IngestionStatus
}

func NewIngestionService(loader *DataLoader, vectordb VectorDBService, datasetPath string, log *logger.Logger) *IngestionService {
	return &IngestionService{
		loader:      loader,
		vectordb:    vectordb,
		datasetPath: datasetPath,
		log:         log.With("service", "IngestionService"),
		status:      IngestionStatus{Phase: IngestionIdle},
	}
}

// Status returns a snapshot of the current state.
func (s *IngestionService) Status() IngestionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// begin transitions Idle/Completed/Failed -> Running, or reports a conflict.
func (s *IngestionService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Phase == IngestionRunning {
		return ErrIngestionInProgress
	}
	now := time.Now()
	s.status.Phase = IngestionRunning
	s.status.StartedAt = &now
	s.status.LastError = ""
	return nil
}

func (s *IngestionService) finish(count int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.StartedAt = nil
	if err != nil {
		s.status.Phase = IngestionFailed
		s.status.LastError = err.Error()
		return
	}
	now := time.Now()
	s.status.Phase = IngestionCompleted
	s.status.LastIngestion = &now
	s.status.DocumentsCount = count
}

// Run ingests all datasets synchronously. With force set, the collection is
// cleared first. Returns the number of documents written.
func (s *IngestionService) Run(ctx context.Context, force bool) (int, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}

	count, err := s.ingest(ctx, force)
	s.finish(count, err)
	return count, err
}

// RunAsync starts an ingestion run in the background. The caller polls
// Status for progress.
func (s *IngestionService) RunAsync(force bool) error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		count, err := s.ingest(context.Background(), force)
		s.finish(count, err)
	}()
	return nil
}

func (s *IngestionService) ingest(ctx context.Context, force bool) (int, error) {
	if force {
		s.log.Info("Force reingest: clearing existing documents")
		if err := s.vectordb.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("failed to clear knowledge base: %w", err)
		}
	}

	s.log.Info("Loading datasets", "path", s.datasetPath)
	documents := s.loader.LoadAllDatasets(s.datasetPath)
	if len(documents) == 0 {
		return 0, ErrNoDocumentsLoaded
	}

	s.log.Info("Adding documents to vector index", "count", len(documents))
	count, err := s.vectordb.AddDocuments(ctx, documents)
	if err != nil {
		return count, fmt.Errorf("failed to add documents to vector index: %w", err)
	}

	s.log.Info("Ingestion complete", "documents", count)
	return count, nil
}

// Clear removes every document from the knowledge base. Rejected while an
// ingestion run is in flight.
func (s *IngestionService) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Phase == IngestionRunning {
		s.mu.Unlock()
		return ErrIngestionInProgress
	}
	s.mu.Unlock()

	if err := s.vectordb.DeleteAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.status.DocumentsCount = 0
	s.mu.Unlock()
	return nil
}

// WatchDatasetDirectory re-ingests when dataset files change on disk.
// Events are debounced because editors often write a file several times in
// quick succession. Blocks until ctx is cancelled.
func (s *IngestionService) WatchDatasetDirectory(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error("Failed to create dataset watcher", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.datasetPath); err != nil {
		s.log.Error("Failed to watch dataset directory", "path", s.datasetPath, "error", err)
		return
	}
	s.log.Info("Watching dataset directory", "path", s.datasetPath)

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isDatasetFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.log.Info("Dataset file changed", "file", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(2*time.Second, func() {
				if err := s.RunAsync(false); err != nil {
					s.log.Warn("Skipping watcher-triggered ingestion", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("Dataset watcher error", "error", err)

		case <-ctx.Done():
			s.log.Info("Dataset watcher shutting down")
			return
		}
	}
}

func isDatasetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".pdf":
		return true
	default:
		return false
	}
}
