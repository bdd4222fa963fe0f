// Package conversation owns per-conversation folder lifecycle, atomic
// JSON persistence of metadata and messages, material ingestion, and
// Markdown/PDF output generation.
package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

// OutputFormat is the set of formats generate_output accepts.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatPDF      OutputFormat = "pdf"
)

// titleMaxChars bounds the derived conversation title.
const titleMaxChars = 40

// PDFRenderer is the external renderer collaborator: an interface, not a
// vendored PDF library. The only bundled implementation is NoopPDFRenderer.
type PDFRenderer interface {
	RenderPDF(markdownPath, outputPath string) error
}

// NoopPDFRenderer always fails; a renderer failure degrades the output
// to the Markdown path with a warning instead of failing the call.
type NoopPDFRenderer struct{}

func (NoopPDFRenderer) RenderPDF(markdownPath, outputPath string) error {
	return fmt.Errorf("no PDF renderer configured")
}

// Manager owns the on-disk folder tree for every conversation.
type Manager struct {
	root string
	pdf  PDFRenderer
	mu   sync.Mutex // guards folder creation; per-conversation writes are further serialized by the owning caller
}

// New creates a Manager rooted at root (typically NEXAGENT_DATA_ROOT).
func New(root string, pdf PDFRenderer) *Manager {
	if pdf == nil {
		pdf = NoopPDFRenderer{}
	}
	return &Manager{root: root, pdf: pdf}
}

func (m *Manager) convDir(id string) string     { return filepath.Join(m.root, "conversations", id) }
func (m *Manager) materialsDir(id string) string { return filepath.Join(m.convDir(id), "materials") }
func (m *Manager) outputsDir(id string) string   { return filepath.Join(m.convDir(id), "outputs") }
func (m *Manager) metadataPath(id string) string { return filepath.Join(m.convDir(id), "metadata.json") }
func (m *Manager) messagesPath(id string) string { return filepath.Join(m.convDir(id), "messages.json") }

// DeriveTitle trims the first prompt to titleMaxChars, preferring a
// sentence boundary.
func DeriveTitle(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "New conversation"
	}
	if len(trimmed) <= titleMaxChars {
		return trimmed
	}

	window := trimmed[:titleMaxChars]
	if idx := strings.LastIndexAny(window, ".!?"); idx > 0 {
		return strings.TrimSpace(window[:idx+1])
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return strings.TrimSpace(window[:idx]) + "..."
	}
	return window + "..."
}

// Create materializes a conversation's folder tree and writes its initial
// metadata.json.
func (m *Manager) Create(id, title string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dir := range []string{m.materialsDir(id), m.outputsDir(id)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("conversation %s: create folder tree: %w", id, err)
		}
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.writeMetadata(id, conv); err != nil {
		return nil, err
	}
	if err := atomicWriteJSON(m.messagesPath(id), []models.Message{}); err != nil {
		return nil, fmt.Errorf("conversation %s: init messages.json: %w", id, err)
	}
	return conv, nil
}

// Get loads a conversation's metadata, or (nil, false) if it does not exist.
func (m *Manager) Get(id string) (*models.Conversation, bool) {
	data, err := os.ReadFile(m.metadataPath(id))
	if err != nil {
		return nil, false
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, false
	}
	return &conv, true
}

// List returns every conversation under the data root, sorted by id for
// stable output.
func (m *Manager) List() []*models.Conversation {
	base := filepath.Join(m.root, "conversations")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var out []*models.Conversation
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if conv, ok := m.Get(e.Name()); ok {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) writeMetadata(id string, conv *models.Conversation) error {
	conv.UpdatedAt = time.Now()
	if err := atomicWriteJSON(m.metadataPath(id), conv); err != nil {
		return fmt.Errorf("conversation %s: write metadata.json: %w", id, err)
	}
	return nil
}

// SaveMessages atomically overwrites messages.json for a conversation and
// advances metadata.updated_at/message_count.
func (m *Manager) SaveMessages(id string, messages []models.Message) error {
	if err := atomicWriteJSON(m.messagesPath(id), messages); err != nil {
		return fmt.Errorf("conversation %s: write messages.json: %w", id, err)
	}
	conv, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("conversation %s: metadata missing", id)
	}
	conv.MessageCount = len(messages)
	return m.writeMetadata(id, conv)
}

// LoadMessages reads back messages.json.
func (m *Manager) LoadMessages(id string) ([]models.Message, error) {
	data, err := os.ReadFile(m.messagesPath(id))
	if err != nil {
		return nil, fmt.Errorf("conversation %s: read messages.json: %w", id, err)
	}
	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("conversation %s: decode messages.json: %w", id, err)
	}
	return messages, nil
}

// sanitizeName treats saved names as single filename components; any
// "/", "\", or ".." is rejected to block path traversal.
func sanitizeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid material name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("material name %q must be a single filename component", name)
	}
	return name, nil
}

// SaveMaterial sanitizes name and writes content under materials/.
func (m *Manager) SaveMaterial(id, name string, content []byte) error {
	clean, err := sanitizeName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(m.materialsDir(id), clean)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("conversation %s: save material %s: %w", id, clean, err)
	}

	conv, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("conversation %s: metadata missing", id)
	}
	conv.Materials = append(conv.Materials, models.Material{
		Name:    clean,
		Path:    path,
		AddedAt: time.Now(),
	})
	return m.writeMetadata(id, conv)
}

// IngestDownloadedFile copies a file obtained from sourceURL into
// materials/ and records provenance in metadata.
func (m *Manager) IngestDownloadedFile(id, sourceURL, localPath string) error {
	name, err := sanitizeName(filepath.Base(localPath))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("conversation %s: read downloaded file: %w", id, err)
	}
	destPath := filepath.Join(m.materialsDir(id), name)
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("conversation %s: write downloaded file: %w", id, err)
	}

	conv, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("conversation %s: metadata missing", id)
	}
	conv.Materials = append(conv.Materials, models.Material{
		Name:      name,
		Path:      destPath,
		SourceURL: sourceURL,
		AddedAt:   time.Now(),
	})
	return m.writeMetadata(id, conv)
}

// GenerateOutput renders the conversation to Markdown, and to PDF via the
// configured PDFRenderer if format == FormatPDF. On renderer failure, the
// Markdown path is returned alongside a non-fatal warning.
func (m *Manager) GenerateOutput(id string, format OutputFormat) (path string, warning string, err error) {
	conv, ok := m.Get(id)
	if !ok {
		return "", "", fmt.Errorf("conversation %s: not found", id)
	}
	messages, err := m.LoadMessages(id)
	if err != nil {
		return "", "", err
	}

	md := renderMarkdown(conv, messages)
	mdPath := filepath.Join(m.outputsDir(id), "output.md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", "", fmt.Errorf("conversation %s: write markdown output: %w", id, err)
	}

	if format == FormatMarkdown {
		return mdPath, "", nil
	}

	pdfPath := filepath.Join(m.outputsDir(id), "output.pdf")
	if err := m.pdf.RenderPDF(mdPath, pdfPath); err != nil {
		return mdPath, fmt.Sprintf("PDF rendering failed, returning Markdown instead: %v", err), nil
	}
	return pdfPath, "", nil
}

func renderMarkdown(conv *models.Conversation, messages []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	b.WriteString("## Conversation\n\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "**%s**: %s\n\n", msg.Role, msg.Content)
	}
	if len(conv.Materials) > 0 {
		b.WriteString("## Materials\n\n")
		for _, mat := range conv.Materials {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", mat.Name)
		}
	}
	return b.String()
}

// atomicWriteJSON pretty-prints v and writes it to path via a temp file
// then rename.
func atomicWriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
