package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessions/internal/confessions"
	"github.com/sujalbistaa/confessions/internal/models"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/rank"
)

// --- Configuration Constants ---
const (
	rateLimitBurst = 1
	pruneInterval  = 10 * time.Minute
)

// --- Structs for request binding ---
type CreateConfessionInput struct {
	Text     string          `json:"text" binding:"required,min=1,max=500"`
	Category models.Category `json:"category"`
}
type ReactInput struct {
	Kind models.ReactionKind `json:"kind" binding:"required,oneof=love laugh shock fire"`
}

// Moderator classifies text before it is posted.
type Moderator interface {
	Classify(ctx context.Context, text string) moderation.Result
}

// --- Rate Limiter ---
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Prune forgets visitors not seen for idle.
func (rl *IPRateLimiter) Prune(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(rl.visitors, ip)
		}
	}
}

// RunPruner prunes every interval until ctx is done.
func (rl *IPRateLimiter) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(interval)
		}
	}
}

func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please wait."})
			return
		}
		c.Next()
	}
}

// --- Handlers ---
type Env struct {
	Repo      *confessions.Repository
	Moderator Moderator
	Log       *zap.Logger
}

func (e *Env) GetConfessions(c *gin.Context) {
	tab := models.Tab(c.DefaultQuery("tab", string(models.TabNew)))
	if !tab.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tab"})
		return
	}
	category := models.Category(c.DefaultQuery("category", string(models.CategoryAll)))
	if category != models.CategoryAll && !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	items := e.Repo.List(c.Request.Context(), tab, identityFrom(c), c.Query("q"), category)
	c.JSON(http.StatusOK, items)
}

func (e *Env) CreateConfession(c *gin.Context) {
	var input CreateConfessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: text is blank"})
		return
	}
	category := input.Category.OrDefault()
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	verdict := e.Moderator.Classify(c.Request.Context(), text)
	if !verdict.Allowed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Content not allowed", "reason": verdict.Reason})
		return
	}

	if !e.Repo.Post(c.Request.Context(), text, identityFrom(c), category) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to post confession"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "moderation": verdict.Reason})
}

func (e *Env) GetDailyPick(c *gin.Context) {
	pick, ok := e.Repo.DailyPick(c.Request.Context())
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, pick)
}

func (e *Env) React(c *gin.Context) {
	var input ReactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	e.Repo.React(c.Request.Context(), c.Param("id"), input.Kind)
	c.Status(http.StatusNoContent)
}

func (e *Env) RecordView(c *gin.Context) {
	e.Repo.RecordView(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (e *Env) RecordShare(c *gin.Context) {
	tally := rank.NewTally(jarFrom(c), e.Log)
	e.Repo.RecordShare(c.Request.Context(), c.Param("id"), tally)
	c.JSON(http.StatusOK, tally.Rank(c.Request.Context()))
}

func (e *Env) GetMe(c *gin.Context) {
	tally := rank.NewTally(jarFrom(c), e.Log)
	c.JSON(http.StatusOK, gin.H{
		"id":   identityFrom(c),
		"rank": tally.Rank(c.Request.Context()),
	})
}

func (e *Env) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"remote": e.Repo.RemoteAvailable()})
}
