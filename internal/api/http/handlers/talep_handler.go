package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/api/dto"
	"github.com/spec-kit/talep-board/internal/auth"
	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/service"
	"github.com/spec-kit/talep-board/internal/storage"
	"github.com/spec-kit/talep-board/pkg/util"
)

// TalepHandler exposes request creation and the requester's own listing.
type TalepHandler struct {
	taleps *service.TalepService
}

// NewTalepHandler constructs handler.
func NewTalepHandler(taleps *service.TalepService) *TalepHandler {
	return &TalepHandler{taleps: taleps}
}

// Create handles POST /talepler. Attachment URLs from a prior upload are
// appended to the description as markdown embeds.
func (h *TalepHandler) Create(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}

	var req dto.CreateTalepRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	description := req.Description
	for _, url := range req.Attachments {
		description += "\n\n" + storage.MarkdownImage("ek", url)
	}

	talep, err := h.taleps.Create(c.UserContext(), *identity, service.CreateTalepInput{
		Title:         req.Title,
		Description:   description,
		Priority:      domain.Priority(strings.ToUpper(strings.TrimSpace(req.Priority))),
		AssigneeName:  req.AssigneeName,
		AssigneeEmail: req.AssigneeEmail,
		DueDate:       req.DueDate,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": talep})
}

// ListMine handles GET /talepler.
func (h *TalepHandler) ListMine(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}

	onlyOpen := c.QueryBool("only_open", false)
	items, err := h.taleps.ListForRequester(c.UserContext(), *identity, c.Query("q"), onlyOpen)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items})
}
