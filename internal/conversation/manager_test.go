package conversation

import (
	"testing"

	"github.com/nexagent/nexagent/pkg/models"
)

func TestCreateAndGet(t *testing.T) {
	m := New(t.TempDir(), nil)
	conv, err := m.Create("conv-1", "Test conversation")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.ID != "conv-1" {
		t.Fatalf("ID = %q", conv.ID)
	}
	got, ok := m.Get("conv-1")
	if !ok {
		t.Fatal("Get: expected conversation")
	}
	if got.Title != "Test conversation" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestSaveAndLoadMessagesRoundTrip(t *testing.T) {
	m := New(t.TempDir(), nil)
	if _, err := m.Create("conv-1", "t"); err != nil {
		t.Fatal(err)
	}
	msgs := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "hi", TimestampMs: 1},
		{ID: "m2", Role: models.RoleAssistant, Content: "hello", TimestampMs: 2},
	}
	if err := m.SaveMessages("conv-1", msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	got, err := m.LoadMessages("conv-1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(got), len(msgs))
	}
	for i := range msgs {
		if got[i] != msgs[i] {
			t.Errorf("message %d: got %+v, want %+v", i, got[i], msgs[i])
		}
	}

	conv, _ := m.Get("conv-1")
	if conv.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", conv.MessageCount)
	}
}

func TestSaveMaterialRejectsPathTraversal(t *testing.T) {
	m := New(t.TempDir(), nil)
	if _, err := m.Create("conv-1", "t"); err != nil {
		t.Fatal(err)
	}
	cases := []string{"../escape.txt", "a/b.txt", `a\b.txt`, "..", ""}
	for _, name := range cases {
		if err := m.SaveMaterial("conv-1", name, []byte("x")); err == nil {
			t.Errorf("SaveMaterial(%q) expected error", name)
		}
	}
}

func TestSaveMaterialRecordsMetadata(t *testing.T) {
	m := New(t.TempDir(), nil)
	if _, err := m.Create("conv-1", "t"); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveMaterial("conv-1", "notes.txt", []byte("hello")); err != nil {
		t.Fatalf("SaveMaterial: %v", err)
	}
	conv, _ := m.Get("conv-1")
	if len(conv.Materials) != 1 || conv.Materials[0].Name != "notes.txt" {
		t.Fatalf("Materials = %+v", conv.Materials)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hi", "hi"},
		{"", "New conversation"},
	}
	for _, tc := range cases {
		if got := DeriveTitle(tc.in); got != tc.want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := "Please fetch the front page of example.com and summarize everything you find there in detail."
	got := DeriveTitle(long)
	if len(got) > titleMaxChars+3 {
		t.Errorf("DeriveTitle(long) = %q, too long (%d chars)", got, len(got))
	}
}

func TestGenerateOutputMarkdown(t *testing.T) {
	m := New(t.TempDir(), nil)
	if _, err := m.Create("conv-1", "My Title"); err != nil {
		t.Fatal(err)
	}
	msgs := []models.Message{{ID: "m1", Role: models.RoleUser, Content: "hi", TimestampMs: 1}}
	if err := m.SaveMessages("conv-1", msgs); err != nil {
		t.Fatal(err)
	}
	path, warning, err := m.GenerateOutput("conv-1", FormatMarkdown)
	if err != nil {
		t.Fatalf("GenerateOutput: %v", err)
	}
	if warning != "" {
		t.Errorf("unexpected warning: %s", warning)
	}
	if path == "" {
		t.Fatal("expected non-empty output path")
	}
}

func TestGenerateOutputPDFFallsBackToMarkdownOnFailure(t *testing.T) {
	m := New(t.TempDir(), nil) // NoopPDFRenderer always fails
	if _, err := m.Create("conv-1", "My Title"); err != nil {
		t.Fatal(err)
	}
	path, warning, err := m.GenerateOutput("conv-1", FormatPDF)
	if err != nil {
		t.Fatalf("GenerateOutput must not fail on renderer error: %v", err)
	}
	if warning == "" {
		t.Error("expected a warning when the PDF renderer fails")
	}
	if path == "" {
		t.Fatal("expected fallback markdown path")
	}
}
