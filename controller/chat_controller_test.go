package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
	"github.com/scio-helpdesk/server/services"
)

// fakeRAG answers with canned text and records learned pairs.
type fakeRAG struct {
	response string
	chunks   []string
	critical bool
	learned  [][2]string
}

func (f *fakeRAG) Retrieve(ctx context.Context, query string, topK int) (string, []models.SourceDocument, error) {
	return "", nil, nil
}

func (f *fakeRAG) DetectCriticalIssue(text string) bool { return f.critical }

func (f *fakeRAG) GenerateResponse(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string) (string, []models.SourceDocument, bool, error) {
	sources := []models.SourceDocument{{Content: "doc", Source: "kb.csv", RelevanceScore: 0.9}}
	return f.response, sources, f.critical, nil
}

func (f *fakeRAG) GenerateResponseStream(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string, onDelta func(string) error) ([]models.SourceDocument, bool, error) {
	for _, chunk := range f.chunks {
		if err := onDelta(chunk); err != nil {
			return nil, f.critical, err
		}
	}
	return nil, f.critical, nil
}

func (f *fakeRAG) GenerateTitle(ctx context.Context, firstMessage string) string {
	return "Test Title"
}

func (f *fakeRAG) LearnQA(ctx context.Context, question, answer string) error {
	f.learned = append(f.learned, [2]string{question, answer})
	return nil
}

func newTestRouter(t *testing.T, rag services.RAGService) (*gin.Engine, *services.ConversationStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		t.Fatal(err)
	}

	store := services.NewConversationStore(db, logger.NewNop())
	chat := NewChatController(rag, store, logger.NewNop())

	router := gin.New()
	router.POST("/api/v1/chat", chat.SendMessage)
	router.POST("/api/v1/chat/stream", chat.SendMessageStream)
	router.POST("/api/v1/chat/feedback", chat.SubmitFeedback)
	router.GET("/api/v1/chat/conversations", chat.ListConversations)
	router.GET("/api/v1/chat/conversations/:id", chat.GetConversation)
	router.DELETE("/api/v1/chat/conversations/:id", chat.DeleteConversation)
	router.PATCH("/api/v1/chat/conversations/:id/pin", chat.PinConversation)
	return router, store
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSendMessage(t *testing.T) {
	t.Run("persists both turns and titles the conversation", func(t *testing.T) {
		rag := &fakeRAG{response: "Restart the router."}
		router, store := newTestRouter(t, rag)

		w := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: "wifi drops"})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}

		var resp models.ChatResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Message.Content != "Restart the router." {
			t.Errorf("content = %q", resp.Message.Content)
		}
		if resp.ConversationID == "" {
			t.Fatal("no conversation id")
		}
		if len(resp.Message.Sources) != 1 {
			t.Errorf("sources = %v", resp.Message.Sources)
		}

		detail, err := store.Get(resp.ConversationID)
		if err != nil {
			t.Fatal(err)
		}
		if len(detail.Messages) != 2 {
			t.Fatalf("persisted %d messages, want 2", len(detail.Messages))
		}
		if detail.Messages[0].Role != models.RoleUser || detail.Messages[1].Role != models.RoleAssistant {
			t.Errorf("roles = %s, %s", detail.Messages[0].Role, detail.Messages[1].Role)
		}
		if detail.Title != "Test Title" {
			t.Errorf("title = %q", detail.Title)
		}
	})

	t.Run("reuses an existing conversation without retitling", func(t *testing.T) {
		rag := &fakeRAG{response: "ok"}
		router, store := newTestRouter(t, rag)

		first := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: "first"})
		var resp models.ChatResponse
		if err := json.Unmarshal(first.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}

		if err := store.SetTitle(resp.ConversationID, "Kept Title"); err != nil {
			t.Fatal(err)
		}

		second := postJSON(t, router, "/api/v1/chat", models.ChatRequest{
			Message:        "second",
			ConversationID: resp.ConversationID,
		})
		if second.Code != http.StatusOK {
			t.Fatalf("status = %d", second.Code)
		}

		detail, err := store.Get(resp.ConversationID)
		if err != nil {
			t.Fatal(err)
		}
		if len(detail.Messages) != 4 {
			t.Errorf("persisted %d messages, want 4", len(detail.Messages))
		}
		if detail.Title != "Kept Title" {
			t.Errorf("title = %q, follow-up turns must not retitle", detail.Title)
		}
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRAG{})
		w := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: ""})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestSendMessageStream(t *testing.T) {
	rag := &fakeRAG{chunks: []string{"Restart ", "the router."}}
	router, store := newTestRouter(t, rag)

	w := postJSON(t, router, "/api/v1/chat/stream", models.ChatRequest{Message: "wifi drops"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, `data: {"content":"Restart "}`) {
		t.Errorf("missing first frame:\n%s", body)
	}
	if !strings.Contains(body, `"done":true`) {
		t.Errorf("missing done frame:\n%s", body)
	}

	summaries, _, err := store.List(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d conversations", len(summaries))
	}
	detail, err := store.Get(summaries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(detail.Messages))
	}
	if detail.Messages[1].Content != "Restart the router." {
		t.Errorf("assistant content = %q", detail.Messages[1].Content)
	}
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("thumbs up on an answer learns the pair", func(t *testing.T) {
		rag := &fakeRAG{response: "Use net use."}
		router, store := newTestRouter(t, rag)

		w := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: "map a network drive"})
		var resp models.ChatResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}

		fw := postJSON(t, router, "/api/v1/chat/feedback", models.FeedbackRequest{
			MessageID: resp.Message.ID,
			Feedback:  models.FeedbackThumbsUp,
		})
		if fw.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", fw.Code, fw.Body.String())
		}

		if len(rag.learned) != 1 {
			t.Fatalf("learned %d pairs, want 1", len(rag.learned))
		}
		if rag.learned[0][0] != "map a network drive" || rag.learned[0][1] != "Use net use." {
			t.Errorf("learned pair = %v", rag.learned[0])
		}

		message, err := store.GetMessage(resp.Message.ID)
		if err != nil {
			t.Fatal(err)
		}
		if message.Feedback == nil || *message.Feedback != models.FeedbackThumbsUp {
			t.Errorf("feedback = %v", message.Feedback)
		}
	})

	t.Run("thumbs down records without learning", func(t *testing.T) {
		rag := &fakeRAG{response: "wrong answer"}
		router, _ := newTestRouter(t, rag)

		w := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: "q"})
		var resp models.ChatResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}

		fw := postJSON(t, router, "/api/v1/chat/feedback", models.FeedbackRequest{
			MessageID: resp.Message.ID,
			Feedback:  models.FeedbackThumbsDown,
		})
		if fw.Code != http.StatusOK {
			t.Fatalf("status = %d", fw.Code)
		}
		if len(rag.learned) != 0 {
			t.Errorf("thumbs down must not learn, got %v", rag.learned)
		}
	})

	t.Run("unknown message is a 404", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRAG{})
		w := postJSON(t, router, "/api/v1/chat/feedback", models.FeedbackRequest{
			MessageID: "no-such-id",
			Feedback:  models.FeedbackThumbsUp,
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("invalid feedback value is rejected", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRAG{})
		w := postJSON(t, router, "/api/v1/chat/feedback", map[string]string{
			"message_id": "x",
			"feedback":   "meh",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestConversationEndpoints(t *testing.T) {
	rag := &fakeRAG{response: "ok"}
	router, store := newTestRouter(t, rag)

	w := postJSON(t, router, "/api/v1/chat", models.ChatRequest{Message: "hello"})
	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	id := resp.ConversationID

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var list models.ConversationListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
			t.Fatal(err)
		}
		if list.Total != 1 || len(list.Conversations) != 1 {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("pin", func(t *testing.T) {
		body, _ := json.Marshal(models.PinRequest{Pinned: true})
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/chat/conversations/"+id+"/pin", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		detail, err := store.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if !detail.IsPinned {
			t.Error("conversation not pinned")
		}
	})

	t.Run("get unknown is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/ghost", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/conversations/"+id, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		req = httptest.NewRequest(http.MethodDelete, "/api/v1/chat/conversations/"+id, nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("second delete status = %d, want 404", rec.Code)
		}
	})
}
