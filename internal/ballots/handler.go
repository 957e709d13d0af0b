package ballots

import (
	"github.com/gin-gonic/gin"

	"github.com/refpoll/backend/pkg/response"
)

// SubmitRequest is the body for POST /polls/:token/ballots.
type SubmitRequest struct {
	VoterName      string   `json:"voter_name"`
	VoterReference string   `json:"voter_reference"`
	OptionIDs      []string `json:"option_ids"`
	// SelectedOptions is accepted for older clients when OptionIDs is empty.
	SelectedOptions []string `json:"selected_options"`
}

func (r SubmitRequest) optionIDs() []string {
	if len(r.OptionIDs) == 0 {
		return r.SelectedOptions
	}
	return r.OptionIDs
}

// Handler handles ballot HTTP endpoints. Both routes are public; the poll
// token is the only credential.
type Handler struct {
	engine *Engine
}

// NewHandler creates a ballots handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Submit handles POST /polls/:token/ballots.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.engine.SubmitBallot(c.Request.Context(), c.Param("token"), SubmitInput{
		VoterName:      req.VoterName,
		VoterReference: req.VoterReference,
		OptionIDs:      req.optionIDs(),
	})
	if err != nil {
		response.Error(c, err, "failed to submit ballot")
		return
	}
	response.Created(c, gin.H{"message": "ballot submitted"})
}

// Results handles GET /polls/:token/results.
func (h *Handler) Results(c *gin.Context) {
	res, err := h.engine.ComputeResults(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err, "failed to compute results")
		return
	}
	response.OK(c, res)
}
