package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

func newTestFineTuneService(t *testing.T, host string) *FineTuneService {
	t.Helper()
	svc, err := NewFineTuneService(http.DefaultClient, host, t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestModelfileContent(t *testing.T) {
	t.Run("defaults fill zero values", func(t *testing.T) {
		content := ModelfileContent("", "", 0, 0, 0)
		for _, want := range []string{
			"FROM llama3.2:3b",
			"PARAMETER temperature 0.7",
			"PARAMETER top_p 0.9",
			"PARAMETER num_ctx 4096",
			"You are SCIO",
		} {
			if !strings.Contains(content, want) {
				t.Errorf("modelfile missing %q:\n%s", want, content)
			}
		}
	})

	t.Run("explicit values are rendered", func(t *testing.T) {
		content := ModelfileContent("mistral:7b", "Answer tersely.", 0.3, 0.5, 2048)
		for _, want := range []string{
			"FROM mistral:7b",
			"PARAMETER temperature 0.3",
			"PARAMETER top_p 0.5",
			"PARAMETER num_ctx 2048",
			`SYSTEM """Answer tersely."""`,
		} {
			if !strings.Contains(content, want) {
				t.Errorf("modelfile missing %q:\n%s", want, content)
			}
		}
	})
}

func TestModelfilePath(t *testing.T) {
	svc := newTestFineTuneService(t, "http://unused")

	t.Run("tag is stripped", func(t *testing.T) {
		path, err := svc.modelfilePath("scio-custom:latest")
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(path) != "Modelfile.scio-custom" {
			t.Errorf("path = %q", path)
		}
	})

	t.Run("traversal cannot escape the models directory", func(t *testing.T) {
		path, err := svc.modelfilePath("../../etc/passwd")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(path, svc.modelsDir) {
			t.Errorf("path escaped models dir: %q", path)
		}
	})
}

func TestCreateModel(t *testing.T) {
	t.Run("writes the modelfile and streams progress", func(t *testing.T) {
		var gotBody models.OllamaCreateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/create" {
				t.Errorf("path = %s", r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			fmt.Fprintln(w, `{"status":"reading model metadata"}`)
			fmt.Fprintln(w, `{"status":"success"}`)
		}))
		defer server.Close()

		svc := newTestFineTuneService(t, server.URL)
		err := svc.CreateModel(context.Background(), models.CreateModelRequest{
			Name:      "scio-helpdesk:latest",
			BaseModel: "llama3.2:3b",
		})
		if err != nil {
			t.Fatal(err)
		}
		if gotBody.Model != "scio-helpdesk:latest" {
			t.Errorf("request model = %q", gotBody.Model)
		}
		if !strings.Contains(gotBody.Modelfile, "FROM llama3.2:3b") {
			t.Errorf("request modelfile = %q", gotBody.Modelfile)
		}

		data, err := os.ReadFile(filepath.Join(svc.modelsDir, "Modelfile.scio-helpdesk"))
		if err != nil {
			t.Fatalf("modelfile copy not written: %v", err)
		}
		if !strings.Contains(string(data), "FROM llama3.2:3b") {
			t.Errorf("modelfile copy = %q", data)
		}
	})

	t.Run("surfaces a streamed error frame", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
		}))
		defer server.Close()

		svc := newTestFineTuneService(t, server.URL)
		err := svc.CreateModel(context.Background(), models.CreateModelRequest{Name: "scio-bad"})
		if err == nil || !strings.Contains(err.Error(), "file does not exist") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("non-200 status fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := newTestFineTuneService(t, server.URL)
		if err := svc.CreateModel(context.Background(), models.CreateModelRequest{Name: "scio-x"}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestDeleteModel(t *testing.T) {
	t.Run("deletes remotely and removes the modelfile copy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/api/delete" {
				t.Errorf("%s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := newTestFineTuneService(t, server.URL)
		path := filepath.Join(svc.modelsDir, "Modelfile.scio-old")
		if err := os.WriteFile(path, []byte("FROM llama3.2:3b\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := svc.DeleteModel(context.Background(), "scio-old:latest"); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("modelfile copy survived deletion")
		}
	})

	t.Run("unknown model maps to ErrNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		svc := newTestFineTuneService(t, server.URL)
		if err := svc.DeleteModel(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestListModelsPartition(t *testing.T) {
	svc := newTestFineTuneService(t, "http://unused")

	// A model without the prefix but with a local Modelfile counts as custom.
	if err := os.WriteFile(filepath.Join(svc.modelsDir, "Modelfile.tuned-mistral"), []byte("FROM mistral:7b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tags := []models.OllamaModelTag{
		{Name: "llama3.2:3b", Size: 2000},
		{Name: "scio-helpdesk:latest", Size: 2100},
		{Name: "tuned-mistral:latest", Size: 4100},
	}
	custom, base := svc.ListModels(context.Background(), tags)

	if len(custom) != 2 {
		t.Fatalf("got %d custom models: %v", len(custom), custom)
	}
	if len(base) != 1 || base[0].Name != "llama3.2:3b" {
		t.Fatalf("base = %v", base)
	}
	for _, info := range custom {
		if !info.IsCustom {
			t.Errorf("custom model %s not flagged", info.Name)
		}
	}
}
