package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxStatsDays     = 365
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, q Querier, poll time.Duration) {
	router.GET("/healthz", handleHealth())

	api := router.Group("/api")
	api.GET("/chats", handleChatList(q))
	api.GET("/chats/:id", handleChatDetail(q))
	api.GET("/users/:id/logs", handleUserLogs(q))
	api.GET("/stats", handleStats(q))
	api.GET("/events", handleSSE(q, poll))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleChatList(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := store.ChatFilter{Status: c.Query("status")}
		if f.Status != "" && !validStatus(f.Status) {
			badRequest(c, "unknown status %q", f.Status)
			return
		}
		if raw := c.Query("user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				badRequest(c, "user_id must be a positive integer")
				return
			}
			f.UserID = id
		}
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		f.Limit = limit

		chats, err := q.ListChats(c.Request.Context(), f)
		if err != nil {
			serverError(c, err)
			return
		}
		rows := make([]ChatView, len(chats))
		for i := range chats {
			rows[i] = NewChatView(&chats[i])
		}
		c.JSON(http.StatusOK, gin.H{"chats": rows, "count": len(rows)})
	}
}

func handleChatDetail(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			badRequest(c, "chat id must be a positive integer")
			return
		}
		detail, err := LoadChatDetail(c.Request.Context(), q, uint(id))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		if err != nil {
			serverError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleUserLogs(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || userID <= 0 {
			badRequest(c, "user id must be a positive integer")
			return
		}
		limit, ok := queryLimit(c)
		if !ok {
			return
		}
		logs, err := q.ListUserLogs(c.Request.Context(), userID, limit)
		if err != nil {
			serverError(c, err)
			return
		}
		rows := make([]LogView, len(logs))
		for i, l := range logs {
			rows[i] = LogView{Action: l.Action, Details: l.Details, CreatedAt: l.CreatedAt}
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "logs": rows})
	}
}

func handleStats(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 1
		if raw := c.Query("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxStatsDays {
				badRequest(c, "days must be between 1 and %d", maxStatsDays)
				return
			}
			days = n
		}
		st, err := q.Stats(c.Request.Context(), time.Now().AddDate(0, 0, -days))
		if err != nil {
			serverError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// queryLimit reads ?limit=, writing a 400 and returning false when invalid.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		badRequest(c, "limit must be between 1 and %d", maxListLimit)
		return 0, false
	}
	return n, true
}

func validStatus(s string) bool {
	switch s {
	case models.ChatPending, models.ChatActive, models.ChatClosed, models.ChatRejected:
		return true
	}
	return false
}
