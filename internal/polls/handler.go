package polls

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/refpoll/backend/internal/middleware"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/response"
)

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Title         string   `json:"title"`
	OrganizerName string   `json:"organizer_name"`
	Options       []string `json:"options"`
	SelectionMode string   `json:"selection_mode"`
	ReferenceHint string   `json:"reference_hint"`
	// SingleVote is accepted for older clients when SelectionMode is empty.
	SingleVote *bool `json:"single_vote"`
}

// CreateResponse is returned by POST /polls.
type CreateResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Link  string `json:"link"`
}

// StateResponse is returned by the close and reopen endpoints.
type StateResponse struct {
	Token string           `json:"token"`
	State models.PollState `json:"state"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	registry    *Registry
	frontendURL string
}

// NewHandler creates a polls handler. frontendURL is the base of share links.
func NewHandler(registry *Registry, frontendURL string) *Handler {
	return &Handler{registry: registry, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// ShareLink returns the voter-facing URL of a poll.
func (h *Handler) ShareLink(token string) string {
	return h.frontendURL + "/vote/" + token
}

// Create handles POST /polls (organizer).
func (h *Handler) Create(c *gin.Context) {
	owner, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	mode := models.SelectionMode(strings.TrimSpace(req.SelectionMode))
	if mode == "" && req.SingleVote != nil && *req.SingleVote {
		mode = models.SelectionSingle
	}

	p, err := h.registry.CreatePoll(c.Request.Context(), owner, CreateInput{
		Title:         req.Title,
		OrganizerName: req.OrganizerName,
		Options:       req.Options,
		SelectionMode: mode,
		ReferenceHint: req.ReferenceHint,
	})
	if err != nil {
		response.Error(c, err, "failed to create poll")
		return
	}
	response.Created(c, CreateResponse{ID: p.ID.String(), Token: p.Token, Link: h.ShareLink(p.Token)})
}

// Get handles GET /polls/:token (public).
func (h *Handler) Get(c *gin.Context) {
	p, err := h.registry.GetPollByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err, "failed to load poll")
		return
	}
	response.OK(c, p.ToPublic())
}

// List handles GET /polls (organizer dashboard).
func (h *Handler) List(c *gin.Context) {
	owner, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return
	}
	list, err := h.registry.ListPollsForOwner(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err, "failed to list polls")
		return
	}
	response.OK(c, list)
}

// Close handles POST /polls/:token/close (owner).
func (h *Handler) Close(c *gin.Context) {
	h.setState(c, models.PollStateClosed)
}

// Reopen handles POST /polls/:token/reopen (owner).
func (h *Handler) Reopen(c *gin.Context) {
	h.setState(c, models.PollStateActive)
}

func (h *Handler) setState(c *gin.Context, target models.PollState) {
	owner, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing caller identity")
		return
	}
	token := c.Param("token")
	state, err := h.registry.SetState(c.Request.Context(), token, owner, target)
	if err != nil {
		response.Error(c, err, "failed to update poll")
		return
	}
	response.OK(c, StateResponse{Token: token, State: state})
}
