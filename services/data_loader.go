package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// errorCodesPerDocument groups roughly this many error codes into one
// document so single-row documents don't fragment the index.
const errorCodesPerDocument = 10

// Dataset file names recognized by the loader.
const (
	knowledgeItemsFile = "synthetic_knowledge_items.csv"
	techSupportFile    = "tech_support_dataset.csv"
	errorCodesFile     = "large_error_codes.csv"
)

var textDatasetFiles = []string{
	"HTTP_Error_Code.txt",
	"Linux_Error_Code.txt",
	"Windows_Error_Code.txt",
}

// DataLoader parses heterogeneous dataset files into normalized documents.
// Per-file failures are logged and skipped; the aggregate never aborts.
type DataLoader struct {
	chunkSize    int
	chunkOverlap int
	log          *logger.Logger
}

func NewDataLoader(chunkSize, chunkOverlap int, log *logger.Logger) *DataLoader {
	return &DataLoader{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		log:          log.With("service", "DataLoader"),
	}
}

// LoadAllDatasets loads every recognized dataset file under path. Missing or
// malformed files are skipped; whatever parsed successfully is returned.
func (l *DataLoader) LoadAllDatasets(path string) []models.Document {
	var all []models.Document

	collect := func(name string, load func(string) ([]models.Document, error)) {
		filePath := filepath.Join(path, name)
		if _, err := os.Stat(filePath); err != nil {
			return
		}
		docs, err := load(filePath)
		if err != nil {
			l.log.Warn("Skipping dataset file", "file", name, "error", err)
			return
		}
		l.log.Info("Loaded dataset file", "file", name, "documents", len(docs))
		all = append(all, docs...)
	}

	collect(knowledgeItemsFile, l.LoadKnowledgeItemsCSV)
	collect(techSupportFile, l.LoadTechSupportCSV)
	collect(errorCodesFile, l.LoadErrorCodesCSV)
	for _, name := range textDatasetFiles {
		collect(name, l.LoadTextFile)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		l.log.Warn("Could not read dataset directory", "path", path, "error", err)
	} else {
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
				continue
			}
			collect(entry.Name(), l.LoadPDFFile)
		}
	}

	l.log.Info("Dataset loading finished", "total_documents", len(all))
	return all
}

// LoadKnowledgeItemsCSV loads topic/body rows (columns ki_topic, ki_text),
// one document per row. Rows with an empty body are skipped.
func (l *DataLoader) LoadKnowledgeItemsCSV(filePath string) ([]models.Document, error) {
	rows, err := readCSVRecords(filePath)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for i, row := range rows {
		topic := strings.TrimSpace(row["ki_topic"])
		text := strings.TrimSpace(row["ki_text"])
		if text == "" {
			continue
		}

		content := text
		if topic != "" {
			content = fmt.Sprintf("Topic: %s\n\n%s", topic, text)
		}

		docs = append(docs, models.Document{
			ID:      models.GenerateDocID(content, "knowledge_items", i),
			Content: content,
			Metadata: map[string]interface{}{
				"source":    knowledgeItemsFile,
				"category":  "Knowledge Base",
				"topic":     topic,
				"row_index": i,
			},
		})
	}
	return docs, nil
}

// LoadTechSupportCSV loads resolved support tickets as Q&A documents.
// Rows missing either the issue or the response are skipped.
func (l *DataLoader) LoadTechSupportCSV(filePath string) ([]models.Document, error) {
	rows, err := readCSVRecords(filePath)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for i, row := range rows {
		issue := strings.TrimSpace(row["Customer Issue"])
		response := strings.TrimSpace(row["Tech Response"])
		category := strings.TrimSpace(row["Issue Category"])
		if issue == "" || response == "" {
			continue
		}

		content := fmt.Sprintf("Customer Issue: %s\n\nTech Support Response: %s", issue, response)
		if category == "" {
			category = "Tech Support"
		}

		docs = append(docs, models.Document{
			ID:      models.GenerateDocID(content, "tech_support", i),
			Content: content,
			Metadata: map[string]interface{}{
				"source":          techSupportFile,
				"category":        category,
				"conversation_id": row["Conversation ID"],
				"resolution_time": row["Resolution Time"],
				"status":          row["Issue Status"],
				"row_index":       i,
			},
		})
	}
	return docs, nil
}

// LoadErrorCodesCSV groups error codes by category and batches them into
// documents of about ten codes each.
func (l *DataLoader) LoadErrorCodesCSV(filePath string) ([]models.Document, error) {
	rows, err := readCSVRecords(filePath)
	if err != nil {
		return nil, err
	}

	// Preserve first-seen category order so IDs stay deterministic.
	var categoryOrder []string
	categories := make(map[string][]string)
	for _, row := range rows {
		code := strings.TrimSpace(row["error_code"])
		description := strings.TrimSpace(row["description"])
		category := strings.TrimSpace(row["category"])
		if code == "" || description == "" {
			continue
		}
		if category == "" {
			category = "General"
		}
		if _, seen := categories[category]; !seen {
			categoryOrder = append(categoryOrder, category)
		}
		categories[category] = append(categories[category], fmt.Sprintf("Error %s: %s", code, description))
	}

	var docs []models.Document
	for _, category := range categoryOrder {
		codes := categories[category]
		for start := 0; start < len(codes); start += errorCodesPerDocument {
			end := start + errorCodesPerDocument
			if end > len(codes) {
				end = len(codes)
			}
			content := fmt.Sprintf("Windows Error Codes - %s:\n\n%s", category, strings.Join(codes[start:end], "\n"))
			docs = append(docs, models.Document{
				ID:      models.GenerateDocID(content, "error_codes", start),
				Content: content,
				Metadata: map[string]interface{}{
					"source":     errorCodesFile,
					"category":   "Error Codes - " + category,
					"error_type": "Windows",
				},
			})
		}
	}
	return docs, nil
}

// LoadTextFile chunks a plain-text dataset file. Category is inferred from
// the filename, defaulting to a generic error-code category.
func (l *DataLoader) LoadTextFile(filePath string) ([]models.Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, nil
	}

	fileName := filepath.Base(filePath)
	category := inferTextCategory(fileName)

	return SplitIntoDocuments(string(content), fileName, map[string]interface{}{
		"source":    fileName,
		"category":  category,
		"file_type": "txt",
	}, l.chunkSize, l.chunkOverlap)
}

// LoadPDFFile extracts page texts, joins them with page markers, and chunks
// with a larger window than plain text. Extraction failures (including a
// missing PDF license) skip the file instead of failing the run.
func (l *DataLoader) LoadPDFFile(filePath string) ([]models.Document, error) {
	text, err := ExtractTextFromPDF(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract pdf text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	fileName := filepath.Base(filePath)
	return SplitIntoDocuments(text, fileName, map[string]interface{}{
		"source":    fileName,
		"category":  "Hardware Troubleshooting",
		"file_type": "pdf",
	}, 1000, 200)
}

func inferTextCategory(fileName string) string {
	lowered := strings.ToLower(fileName)
	switch {
	case strings.Contains(lowered, "http"):
		return "HTTP Error Codes"
	case strings.Contains(lowered, "linux"):
		return "Linux Error Codes"
	case strings.Contains(lowered, "windows"):
		return "Windows Error Codes"
	default:
		return "Error Codes"
	}
}

// readCSVRecords reads a CSV file into header-keyed rows. Rows with a
// mismatched field count are skipped rather than failing the file.
func readCSVRecords(filePath string) ([]map[string]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) != len(header) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, field := range record {
			row[header[i]] = field
		}
		rows = append(rows, row)
	}
	return rows, nil
}
