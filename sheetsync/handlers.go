package sheetsync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
)

// OrderItemsHandler lists persisted order items ordered by ID. Pure read
// pass-through; reconciliation state is never exposed here.
func OrderItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.GetOrderItems(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

type executionListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ExecutionsHandler lists reconciliation attempts, newest first.
func ExecutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var query executionListQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		limit := query.Limit
		if limit == 0 {
			limit = 50
		}

		executions, err := models.GetUpdateExecutions(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": executions})
	}
}

// ExecutionDetailHandler returns one reconciliation attempt with its
// attached errors.
func ExecutionDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		exec, err := models.GetUpdateExecution(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, exec)
	}
}
