package services

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		t.Fatal(err)
	}
	return NewConversationStore(db, logger.NewNop())
}

func TestGetOrCreate(t *testing.T) {
	store := newTestStore(t)

	t.Run("empty id creates a conversation", func(t *testing.T) {
		conversation, err := store.GetOrCreate("")
		if err != nil {
			t.Fatal(err)
		}
		if conversation.ID == "" {
			t.Fatal("no id assigned")
		}
		if conversation.Title != "New Conversation" {
			t.Errorf("title = %q", conversation.Title)
		}
	})

	t.Run("existing id returns the same row", func(t *testing.T) {
		created, err := store.GetOrCreate("")
		if err != nil {
			t.Fatal(err)
		}
		fetched, err := store.GetOrCreate(created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if fetched.ID != created.ID {
			t.Errorf("got %s, want %s", fetched.ID, created.ID)
		}
	})

	t.Run("unknown id creates a fresh conversation", func(t *testing.T) {
		conversation, err := store.GetOrCreate("no-such-id")
		if err != nil {
			t.Fatal(err)
		}
		if conversation.ID == "no-such-id" {
			t.Error("unknown id should not be reused")
		}
	})
}

func TestListOrdering(t *testing.T) {
	store := newTestStore(t)

	first, _ := store.GetOrCreate("")
	second, _ := store.GetOrCreate("")
	third, _ := store.GetOrCreate("")

	// Touch in a known order, then pin the oldest.
	for _, id := range []string{first.ID, second.ID, third.ID} {
		if err := store.Touch(id); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := store.SetPinned(first.ID, true); err != nil {
		t.Fatal(err)
	}

	summaries, total, err := store.List(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d", total)
	}
	if len(summaries) != 3 {
		t.Fatalf("got %d summaries", len(summaries))
	}
	if summaries[0].ID != first.ID {
		t.Errorf("pinned conversation should come first, got %s", summaries[0].ID)
	}
	if summaries[1].ID != third.ID {
		t.Errorf("unpinned conversations should order by recent activity, got %s", summaries[1].ID)
	}
}

func TestMessagesAndSources(t *testing.T) {
	store := newTestStore(t)
	conversation, _ := store.GetOrCreate("")

	if _, err := store.AddMessage(conversation.ID, models.RoleUser, "my wifi drops", nil, false); err != nil {
		t.Fatal(err)
	}
	sources := []models.SourceDocument{
		{Content: "Reset the router.", Source: "tech_support_dataset.csv (Network)", RelevanceScore: 0.8},
	}
	if _, err := store.AddMessage(conversation.ID, models.RoleAssistant, "Try resetting the router.", sources, false); err != nil {
		t.Fatal(err)
	}

	detail, err := store.Get(conversation.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("got %d messages", len(detail.Messages))
	}
	if detail.Messages[0].Role != models.RoleUser {
		t.Errorf("messages out of order: first role = %s", detail.Messages[0].Role)
	}
	assistant := detail.Messages[1]
	if len(assistant.Sources) != 1 {
		t.Fatalf("sources lost in round trip: %v", assistant.Sources)
	}
	if assistant.Sources[0].Source != "tech_support_dataset.csv (Network)" {
		t.Errorf("source = %q", assistant.Sources[0].Source)
	}

	summaries, _, err := store.List(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if summaries[0].MessageCount != 2 {
		t.Errorf("message count = %d", summaries[0].MessageCount)
	}
}

func TestDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	conversation, _ := store.GetOrCreate("")
	store.AddMessage(conversation.ID, models.RoleUser, "hello", nil, false)

	if err := store.Delete(conversation.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(conversation.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	messages, err := store.Messages(conversation.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Errorf("messages survived deletion: %d", len(messages))
	}

	if err := store.Delete("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete unknown: err = %v, want ErrNotFound", err)
	}
}

func TestSetPinnedUnknown(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetPinned("no-such-id", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFeedback(t *testing.T) {
	store := newTestStore(t)
	conversation, _ := store.GetOrCreate("")
	message, err := store.AddMessage(conversation.ID, models.RoleAssistant, "answer", nil, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetFeedback(message.ID, models.FeedbackThumbsUp); err != nil {
		t.Fatal(err)
	}
	fetched, err := store.GetMessage(message.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Feedback == nil || *fetched.Feedback != models.FeedbackThumbsUp {
		t.Errorf("feedback = %v", fetched.Feedback)
	}

	if err := store.SetFeedback("no-such-id", models.FeedbackThumbsDown); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPrecedingUserMessage(t *testing.T) {
	store := newTestStore(t)
	conversation, _ := store.GetOrCreate("")

	q1, _ := store.AddMessage(conversation.ID, models.RoleUser, "first question", nil, false)
	time.Sleep(2 * time.Millisecond)
	store.AddMessage(conversation.ID, models.RoleAssistant, "first answer", nil, false)
	time.Sleep(2 * time.Millisecond)
	q2, _ := store.AddMessage(conversation.ID, models.RoleUser, "second question", nil, false)
	time.Sleep(2 * time.Millisecond)
	a2, _ := store.AddMessage(conversation.ID, models.RoleAssistant, "second answer", nil, false)

	preceding, err := store.PrecedingUserMessage(conversation.ID, a2.Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if preceding.ID != q2.ID {
		t.Errorf("got %q, want the latest user turn before the answer", preceding.Content)
	}

	if _, err := store.PrecedingUserMessage(conversation.ID, q1.Timestamp); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound before the first turn", err)
	}
}
