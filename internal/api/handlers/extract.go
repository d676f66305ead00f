package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// Resolver is implemented by the dispatcher and the caching decorator.
type Resolver interface {
	Resolve(ctx context.Context, req models.MediaRequest) (*models.ExtractionResult, error)
}

// TicketIssuer signs stream tickets for a single target.
type TicketIssuer interface {
	Issue(target string, headers map[string]string) (string, time.Time, error)
}

type ExtractHandler struct {
	resolver      Resolver
	tickets       TicketIssuer
	publicBaseURL string
}

func NewExtractHandler(resolver Resolver, tickets TicketIssuer, publicBaseURL string) *ExtractHandler {
	return &ExtractHandler{
		resolver:      resolver,
		tickets:       tickets,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Extract godoc
// @Summary Resolve a page URL into downloadable media options
// @Description Runs the extraction chain (structured extractor, relay cluster, page scraper) and returns the options of the first strategy that succeeds. Each option carries a ready /stream link with a signed ticket.
// @Tags media
// @Accept json
// @Produce json
// @Param request body models.ExtractRequest true "Page URL and mode (auto, video, audio)"
// @Success 200 {object} models.ExtractResponse
// @Failure 400 {object} models.ErrorDetailResponse
// @Failure 404 {object} models.ErrorDetailResponse
// @Failure 504 {object} models.ErrorDetailResponse
// @Failure 500 {object} models.ErrorDetailResponse
// @Router /extract [post]
// @Security ApiKeyAuth
func (h *ExtractHandler) Extract(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detailResponse(c, utils.NewBadInputError("Invalid request body: url is required", nil))
		return
	}

	result, err := h.resolver.Resolve(ctx, models.MediaRequest{
		SourceURL: req.URL,
		Mode:      models.Mode(req.Mode),
	})
	if err != nil {
		detailResponse(c, toAppError(c, err, "resolving media"))
		return
	}

	options := make([]models.ExtractOption, 0, len(result.Options))
	for _, opt := range result.Options {
		options = append(options, models.ExtractOption{
			Type:          opt.Kind,
			Label:         opt.Label,
			URL:           opt.URL,
			FileSize:      opt.EstimatedSizeBytes,
			FileSizeExact: opt.SizeExact,
			StreamURL:     h.streamURL(ctx, result.Title, opt),
		})
	}

	if result.Source != "" {
		c.Header("X-Extraction-Source", result.Source)
	}
	c.JSON(http.StatusOK, models.ExtractResponse{
		Status:    "success",
		Title:     result.Title,
		Thumbnail: result.ThumbnailURL,
		Options:   options,
	})
}

// streamURL builds the /stream link for one option. It is empty when no
// ticket could be issued.
func (h *ExtractHandler) streamURL(ctx context.Context, title string, opt models.MediaOption) string {
	if h.tickets == nil {
		return ""
	}
	token, _, err := h.tickets.Issue(opt.URL, opt.Headers)
	if err != nil {
		utils.LogError(ctx, "Failed to issue stream ticket", err)
		return ""
	}

	query := url.Values{}
	query.Set("target", opt.URL)
	query.Set("title", title)
	if opt.EstimatedSizeBytes != nil && opt.SizeExact {
		query.Set("size", strconv.FormatUint(*opt.EstimatedSizeBytes, 10))
	}
	query.Set("token", token)

	return h.publicBaseURL + "/stream?" + query.Encode()
}
