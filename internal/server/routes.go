package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/datastore"
	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/peer"
	"github.com/xtxerr/sensorlog/internal/schema"
)

func (s *Server) registerRoutes() {
	s.engine.POST("/", s.ingest)
	s.engine.GET("/", s.tail)
	s.engine.GET("/archive/:format/", s.archive)
	s.engine.POST("/archive/:format/", s.archiveSince)
	s.engine.GET("/range", s.rangeQuery)
	s.engine.GET("/summary", s.summary)
	s.engine.POST("/register_forwarding_server/", s.registerForwarding)
	s.engine.DELETE("/register_forwarding_server/", s.unregisterForwarding)
	s.engine.GET("/helloworld/", s.hello)
}

// ingest accepts one JSON reading. Validation happens here at the
// boundary; the store itself accepts anything.
func (s *Server) ingest(c *gin.Context) {
	var r schema.Reading
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Timestamp.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp is required"})
		return
	}
	if err := r.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.store.AddReading(r)
	s.mu.Unlock()

	if s.fwd != nil {
		go s.fwd.Broadcast(context.Background(), r)
	}

	c.Status(http.StatusAccepted)
}

// tail renders the last few rows of the current view as CSV.
func (s *Server) tail(c *gin.Context) {
	s.mu.Lock()
	table := s.store.Tail(c.Request.Context(), defaults.DefaultTailRows)
	s.mu.Unlock()

	data, err := format.Text.Serialize(table)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, format.Text.ContentType(), data)
}

// archive serves the full current table in the requested format.
func (s *Server) archive(c *gin.Context) {
	f, err := format.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	data, err := s.store.Serialize(c.Request.Context(), f, nil, nil)
	s.mu.Unlock()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, f.ContentType(), data)
}

// archiveSince serves readings at or after the JSON timestamp in the
// request body.
func (s *Server) archiveSince(c *gin.Context) {
	f, err := format.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var since time.Time
	if err := c.ShouldBindJSON(&since); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	data, err := s.store.Serialize(c.Request.Context(), f, &since, nil)
	s.mu.Unlock()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, f.ContentType(), data)
}

// rangeQuery serves the half-open interval [start, end) from query
// parameters, defaulting to CSV.
func (s *Server) rangeQuery(c *gin.Context) {
	f := format.Text
	if name := c.Query("format"); name != "" {
		parsed, err := format.ParseFormat(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f = parsed
	}

	start, err := parseTimeParam(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseTimeParam(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	table, err := s.store.Range(c.Request.Context(), start, end)
	s.mu.Unlock()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	data, err := f.Serialize(table)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, f.ContentType(), data)
}

// summary serves per-sensor aggregates over [start, end) as JSON.
func (s *Server) summary(c *gin.Context) {
	start, err := parseTimeParam(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseTimeParam(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	summaries, err := s.store.Summarize(c.Request.Context(), start, end)
	s.mu.Unlock()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// registerForwarding subscribes the caller to reading rebroadcasts.
// The target is derived from the caller's remote address and receives
// forwarded readings at POST /.
func (s *Server) registerForwarding(c *gin.Context) {
	endpoint, err := callerEndpoint(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.fwd.Register(endpoint)
	c.JSON(http.StatusOK, gin.H{"endpoint": endpoint})
}

func (s *Server) unregisterForwarding(c *gin.Context) {
	endpoint, err := callerEndpoint(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.fwd.Remove(endpoint)
	c.JSON(http.StatusOK, gin.H{"endpoint": endpoint})
}

func (s *Server) hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello World!")
}

func callerEndpoint(c *gin.Context) (string, error) {
	host, port, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("parse remote address %q: %w", c.Request.RemoteAddr, err)
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, port)), nil
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return &ts, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, datastore.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, peer.ErrArchiveUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
