package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/pkg/response"
)

type TagHandler struct {
	tagService     *services.TagService
	projectService *services.ProjectService
}

func NewTagHandler(tagService *services.TagService, projectService *services.ProjectService) *TagHandler {
	return &TagHandler{
		tagService:     tagService,
		projectService: projectService,
	}
}

// Index returns tags for a picker: selected first, then popular
// GET /api/tags
func (h *TagHandler) Index(c *gin.Context) {
	var req services.TagIndexRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tags, err := h.tagService.Index(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tags)
}

// Alphabetical returns every tag ordered by name
// GET /api/tags/alphabetical
func (h *TagHandler) Alphabetical(c *gin.Context) {
	tags, err := h.tagService.Alphabetical(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tags)
}

// Projects lists projects carrying a tag
// GET /api/tags/:name/projects
func (h *TagHandler) Projects(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.Tags = []string{c.Param("name")}
	req.Match = ""

	resp, err := h.projectService.List(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Paged(c, resp.Items, resp.Total, resp.Page, resp.PageSize)
}
