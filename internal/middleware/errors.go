package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentoauth/evaluator/internal/apierr"
	"github.com/agentoauth/evaluator/internal/logger"
)

// ErrorHandler renders any *apierr.Error left on the gin context as the
// stable {error, code} response shape from spec §7.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()
		if appErr, ok := err.Err.(*apierr.Error); ok {
			log := logger.HTTP().With().Str("code", appErr.Code).Logger()
			if appErr.Status >= 500 {
				log.Error().Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Msg(appErr.Message)
			}
			c.JSON(appErr.Status, appErr.ToResponse())
			return
		}

		logger.HTTP().Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, apierr.Response{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}

// Recovery recovers from panics and renders a 500 instead of crashing the
// process, matching the teacher's Recovery middleware.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, apierr.Response{
					Error: "internal server error",
					Code:  "INTERNAL_ERROR",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// AbortWithError aborts the request with a rendered *apierr.Error.
func AbortWithError(c *gin.Context, err *apierr.Error) {
	c.Error(err)
	c.AbortWithStatusJSON(err.Status, err.ToResponse())
}

// AbortWithDeny aborts the request with the DENY decision shape.
func AbortWithDeny(c *gin.Context, err *apierr.Error) {
	c.Error(err)
	c.AbortWithStatusJSON(err.Status, err.ToDenyResponse())
}
