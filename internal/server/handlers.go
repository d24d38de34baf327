package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/johnayoung/llm-verify/internal/history"
	"github.com/johnayoung/llm-verify/internal/ingest"
	"github.com/johnayoung/llm-verify/internal/runner"
	"github.com/johnayoung/llm-verify/internal/session"
)

const defaultHistoryLimit = 20

// RunRequest is the body of POST /v1/runs.
type RunRequest struct {
	Question    string              `json:"question" binding:"required"`
	Attempts    int                 `json:"attempts" binding:"omitempty,gte=1,lte=20"`
	Attachments []AttachmentRequest `json:"attachments" binding:"omitempty,dive"`
}

// AttachmentRequest carries one file inline. Data is base64 in JSON.
type AttachmentRequest struct {
	Name      string `json:"name" binding:"required"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStartRun starts a run, superseding any run in flight.
func HandleStartRun(sess *session.Session, defaultAttempts int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindingError(err)})
			return
		}
		if req.Attempts == 0 {
			req.Attempts = defaultAttempts
		}

		files := make([]ingest.File, len(req.Attachments))
		for i, a := range req.Attachments {
			files[i] = ingest.File{Name: a.Name, MediaType: a.MediaType, Data: a.Data}
		}
		attachments, err := ingest.Load(c.Request.Context(), files)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		st, err := sess.Start(c.Request.Context(), session.Request{
			Question:    req.Question,
			Attempts:    req.Attempts,
			Attachments: attachments,
		})
		if err != nil {
			var verr *runner.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, st)
	}
}

// HandleCurrentRun returns the current run state.
func HandleCurrentRun(sess *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Snapshot())
	}
}

// HandleRunEvents streams state snapshots as server-sent events. The stream
// closes after the current run reaches a terminal status, or immediately when
// no run is in flight.
func HandleRunEvents(sess *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, unsubscribe := sess.Subscribe()
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				c.SSEvent("state", st)
				c.Writer.Flush()
				if st.Status != runner.StatusRunning {
					c.SSEvent("done", gin.H{"run_id": st.RunID, "status": st.Status})
					c.Writer.Flush()
					return
				}
			}
		}
	}
}

// HandleListHistory lists recent runs. ?limit=N bounds the result.
func HandleListHistory(h History) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", v)})
				return
			}
			limit = n
		}

		entries, err := h.List(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": entries})
	}
}

// HandleGetHistory returns the stored state of one run.
func HandleGetHistory(h History) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := h.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// bindingError flattens validator field errors into one readable message.
func bindingError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body: " + err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), rule))
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}
