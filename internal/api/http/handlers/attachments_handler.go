package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/auth"
	"github.com/spec-kit/talep-board/internal/storage"
	"github.com/spec-kit/talep-board/pkg/util"
)

// AttachmentsHandler accepts image uploads for new requests.
type AttachmentsHandler struct {
	store storage.Uploader
}

// NewAttachmentsHandler constructs handler.
func NewAttachmentsHandler(store storage.Uploader) *AttachmentsHandler {
	return &AttachmentsHandler{store: store}
}

// Upload handles POST /attachments. Multipart field "files"; responds with
// the stored URLs and ready-to-paste markdown embeds.
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return util.NewValidationError("multipart form required", nil)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return util.NewValidationError("no files provided", nil)
	}
	if max := h.store.MaxFiles(); len(files) > max {
		return util.NewValidationError("too many files", map[string]any{"max": max})
	}

	type uploaded struct {
		URL      string `json:"url"`
		Markdown string `json:"markdown"`
	}
	results := make([]uploaded, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return util.NewInternalError(err)
		}
		url, err := h.store.Save(c.UserContext(), identity.Email, header.Filename, header.Header.Get("Content-Type"), f)
		_ = f.Close()
		if err != nil {
			return err
		}
		results = append(results, uploaded{URL: url, Markdown: storage.MarkdownImage("ek", url)})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": results})
}
