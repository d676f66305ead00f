package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/streamer"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// toAppError maps service errors onto the public taxonomy and logs the
// cause of anything that ends up as an internal error.
func toAppError(c *gin.Context, err error, operation string) *utils.AppError {
	var blocked *streamer.BlockedError
	if errors.As(err, &blocked) {
		return utils.NewUpstreamBlockedError(blocked.LastStatus, len(blocked.Attempts))
	}

	appErr := utils.AsAppError(err, operation)
	if appErr.StatusCode >= http.StatusInternalServerError && appErr.Code == utils.ErrorCodeInternalError {
		utils.LogError(c.Request.Context(), "Request failed while "+operation, err)
	}
	return appErr
}

func detailResponse(c *gin.Context, err *utils.AppError) {
	c.JSON(err.StatusCode, models.ErrorDetailResponse{Detail: err.Message})
}

func textResponse(c *gin.Context, err *utils.AppError) {
	c.String(err.StatusCode, err.Message)
}
