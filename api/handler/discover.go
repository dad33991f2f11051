package handler

import (
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shopscout/discovery"
	"github.com/use-agent/shopscout/models"
	"github.com/use-agent/shopscout/pricing"
)

// Discover returns a handler for POST and GET /api/v1/discover.
//
// The response is a text/event-stream of progress, product, error and done
// events. The stream ends after done, or when the client goes away, which
// cancels the session through the request context.
func Discover(svc *discovery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := bindDiscover(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()
		if utf8.RuneCountInString(req.Keyword) < 2 {
			badRequest(c, "keyword must be at least 2 characters")
			return
		}

		events := svc.Run(c.Request.Context(), req)

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Stream(func(w io.Writer) bool {
			ev, ok := <-events
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev.Data)
			return ev.Type != models.EventDone
		})

		// The session stops emitting once the request context is done;
		// draining lets it run its cleanup.
		for range events {
		}
	}
}

func bindDiscover(c *gin.Context) (models.DiscoverRequest, error) {
	var req models.DiscoverRequest
	if c.Request.Method == http.MethodGet {
		if err := c.ShouldBindQuery(&req); err != nil {
			return req, err
		}
		if raw := c.Query("markup"); raw != "" {
			rules, err := pricing.ParseRules(raw)
			if err != nil {
				return req, err
			}
			req.MarkupRules = rules
		}
		return req, nil
	}
	err := c.ShouldBindJSON(&req)
	return req, err
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: msg,
		},
	})
}
