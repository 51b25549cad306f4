package services

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

var (
	pdfLicenseOnce sync.Once
	pdfLicenseErr  error
)

// initPDFLicense sets the metered UniPDF license key once. Without a key
// PDF extraction is unavailable and PDF files are skipped during ingestion.
func initPDFLicense() error {
	pdfLicenseOnce.Do(func() {
		key := os.Getenv("UNIDOC_LICENSE_KEY")
		if key == "" {
			pdfLicenseErr = fmt.Errorf("UNIDOC_LICENSE_KEY not set; pdf extraction disabled")
			return
		}
		pdfLicenseErr = license.SetMeteredKey(key)
	})
	return pdfLicenseErr
}

// ExtractTextFromPDF returns the text of every page, concatenated with
// [Page N] markers so chunk provenance survives splitting.
func ExtractTextFromPDF(path string) (string, error) {
	if err := initPDFLicense(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return "", err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n\n[Page %d]\n%s", i, text))
	}

	return sb.String(), nil
}
