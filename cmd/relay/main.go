// Command relay is a local stand-in for the FormSubmit ajax endpoint. It
// accepts the gateway's notification payload and fails a configurable share
// of requests so the dispatcher's partial-delivery path can be exercised.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const keepReceived = 100

// Notification mirrors the body the gateway posts to /ajax/:recipient.
type Notification struct {
	Name     *string `json:"name"`
	Email    string  `json:"email" binding:"required"`
	Phone    *string `json:"phone"`
	Location *string `json:"location"`
	Timeline *string `json:"timeline"`
	Message  *string `json:"message"`
	PagePath *string `json:"page_path"`
	Source   string  `json:"source"`
	Subject  string  `json:"_subject"`
	Template string  `json:"_template"`
}

type Received struct {
	ID         string       `json:"id"`
	Recipient  string       `json:"recipient"`
	Delivered  bool         `json:"delivered"`
	ReceivedAt time.Time    `json:"received_at"`
	Payload    Notification `json:"payload"`
}

// MockRelay keeps the last few notifications in memory.
type MockRelay struct {
	mu          sync.Mutex
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	relayID     string
	rng         *rand.Rand
	received    []Received
}

func NewMockRelay(successRate float64, minDelay, maxDelay time.Duration) *MockRelay {
	return &MockRelay{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		relayID:     "MOCK_RELAY_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockRelay) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockRelay) record(recipient string, n Notification) Received {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Received{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Delivered:  m.rng.Float64() < m.successRate,
		ReceivedAt: time.Now().UTC(),
		Payload:    n,
	}
	if len(m.received) >= keepReceived {
		m.received = m.received[1:]
	}
	m.received = append(m.received, r)
	return r
}

func (m *MockRelay) Received() []Received {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Received(nil), m.received...)
}

func (m *MockRelay) SetSuccessRate(rate float64) {
	m.mu.Lock()
	m.successRate = rate
	m.mu.Unlock()
}

func (m *MockRelay) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successRate
}

type Handler struct {
	relay *MockRelay
}

func NewHandler(relay *MockRelay) *Handler {
	return &Handler{relay: relay}
}

// Submit answers the way FormSubmit does: "success" is a string.
func (h *Handler) Submit(c *gin.Context) {
	recipient := c.Param("recipient")
	if !strings.Contains(recipient, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"success": "false", "message": "Invalid recipient"})
		return
	}

	var n Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": "false", "message": err.Error()})
		return
	}

	time.Sleep(h.relay.randomDelay())
	r := h.relay.record(recipient, n)

	if !r.Delivered {
		log.Warn().
			Str("id", r.ID).
			Str("recipient", recipient).
			Str("source", n.Source).
			Msg("simulated relay failure")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": "false", "message": "Relay temporarily unavailable"})
		return
	}

	log.Info().
		Str("id", r.ID).
		Str("recipient", recipient).
		Str("subject", n.Subject).
		Str("source", n.Source).
		Msg("notification relayed")
	c.JSON(http.StatusOK, gin.H{"success": "true", "message": "The form was submitted successfully."})
}

func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.relay.Received()})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"relay_id":     h.relay.relayID,
		"timestamp":    time.Now(),
		"success_rate": h.relay.SuccessRate(),
	})
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var body struct {
		SuccessRate *float64 `json:"success_rate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if body.SuccessRate != nil && *body.SuccessRate >= 0 && *body.SuccessRate <= 1 {
		h.relay.SetSuccessRate(*body.SuccessRate)
		log.Info().Float64("rate", *body.SuccessRate).Msg("updated success rate")
	}
	c.JSON(http.StatusOK, gin.H{"success_rate": h.relay.SuccessRate()})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.POST("/ajax/:recipient", handler.Submit)
	router.GET("/received", handler.List)
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)
	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	successRate := getEnvFloat("SUCCESS_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 400*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("starting mock email relay")

	router := SetupRouter(NewHandler(NewMockRelay(successRate, minDelay, maxDelay)))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
