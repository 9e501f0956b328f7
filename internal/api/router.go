package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"hunter/internal/core"
	"hunter/internal/core/types"
	"hunter/internal/storage/models"
	pkgerrors "hunter/pkg/errors"
)

// Controller is the session API exposed over HTTP.
type Controller interface {
	State(ctx context.Context) (*types.State, error)
	Enable(ctx context.Context, name string) (*types.State, error)
	Switch(ctx context.Context, name string) (*types.State, error)
	Disable(ctx context.Context) (*types.State, error)
	Delete(ctx context.Context, index int) (bool, error)
	AddOrUpdate(ctx context.Context, node *models.ServerNode, index int) error
	SetSystemProxy(ctx context.Context, on bool) (*types.State, error)
	SetDaemon(ctx context.Context, on bool) (*types.State, error)
	Probe(ctx context.Context) (time.Duration, error)
}

// Options configures the router.
type Options struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// OnAbort runs after a request declined a process conflict.
	OnAbort func()
	Logger  *slog.Logger
}

type Router struct {
	ctrl    Controller
	onAbort func()
	logger  *slog.Logger
}

func NewRouter(ctrl Controller, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Router{ctrl: ctrl, onAbort: opts.OnAbort, logger: opts.Logger}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	r.register(engine, opts.Metrics)
	return engine
}

func (r *Router) register(engine *gin.Engine, metrics http.Handler) {
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	engine.GET("/state", r.getState)

	nodes := engine.Group("/nodes")
	{
		nodes.GET("", r.listNodes)
		nodes.POST("", r.createNode)
		nodes.PUT(":index", r.updateNode)
		nodes.DELETE(":index", r.deleteNode)
		nodes.POST(":name/enable", r.enableNode)
	}

	engine.POST("/disable", r.disable)
	engine.POST("/proxy", r.setProxy)
	engine.POST("/daemon", r.setDaemon)
	engine.POST("/probe", r.probe)

	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}
}

type nodeRequest struct {
	Name     string `json:"name" binding:"required"`
	Addr     string `json:"addr" binding:"required"`
	Port     int    `json:"port"`
	Password string `json:"password" binding:"required"`
}

func (req nodeRequest) node() (*models.ServerNode, error) {
	n := &models.ServerNode{
		Name:     strings.TrimSpace(req.Name),
		Addr:     strings.TrimSpace(req.Addr),
		Port:     req.Port,
		Password: req.Password,
	}
	if n.Port == 0 {
		n.Port = models.DefaultNodePort
	}
	if n.Port < 1 || n.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", n.Port)
	}
	return n, nil
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// queryPrompter answers every confirmation raised during one request with
// the request's confirm query parameter, and remembers what was asked.
type queryPrompter struct {
	answer bool
	mu     sync.Mutex
	asked  []types.Prompt
}

func (p *queryPrompter) Confirm(ctx context.Context, prompt types.Prompt) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, prompt)
	return p.answer, nil
}

func (p *queryPrompter) prompts() []types.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Prompt(nil), p.asked...)
}

// requestContext binds a queryPrompter to the request context.
func requestContext(c *gin.Context) (context.Context, *queryPrompter) {
	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	p := &queryPrompter{answer: confirm}
	return core.WithPrompter(c.Request.Context(), p), p
}

func (r *Router) getState(c *gin.Context) {
	st, err := r.ctrl.State(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) listNodes(c *gin.Context) {
	st, err := r.ctrl.State(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes": st.Nodes,
	})
}

func (r *Router) createNode(c *gin.Context) {
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	node, err := req.node()
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := r.ctrl.AddOrUpdate(c.Request.Context(), node, core.AppendIndex); err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

func (r *Router) updateNode(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid index %q", c.Param("index")))
		return
	}
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	node, err := req.node()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := r.ctrl.AddOrUpdate(c.Request.Context(), node, index); err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (r *Router) deleteNode(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid index %q", c.Param("index")))
		return
	}
	ctx, prompter := requestContext(c)
	deleted, err := r.ctrl.Delete(ctx, index)
	if err != nil {
		r.handleError(c, err)
		return
	}
	resp := gin.H{"deleted": deleted}
	if !deleted {
		if asked := prompter.prompts(); len(asked) > 0 {
			resp["confirmation_required"] = asked[0]
		}
	}
	c.JSON(http.StatusOK, resp)
}

// enableNode enables the named node, or switches to it when another node runs.
func (r *Router) enableNode(c *gin.Context) {
	name := c.Param("name")
	ctx, _ := requestContext(c)

	cur, err := r.ctrl.State(ctx)
	if err != nil {
		r.handleError(c, err)
		return
	}

	var st *types.State
	if cur.Phase == types.PhaseRunning && cur.Node != name {
		st, err = r.ctrl.Switch(ctx, name)
	} else {
		st, err = r.ctrl.Enable(ctx, name)
	}
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) disable(c *gin.Context) {
	ctx, _ := requestContext(c)
	st, err := r.ctrl.Disable(ctx)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) setProxy(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, _ := requestContext(c)
	st, err := r.ctrl.SetSystemProxy(ctx, *req.Enabled)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) setDaemon(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, _ := requestContext(c)
	st, err := r.ctrl.SetDaemon(ctx, *req.Enabled)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) probe(c *gin.Context) {
	elapsed, err := r.ctrl.Probe(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"latency_ms": elapsed.Milliseconds()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (r *Router) handleError(c *gin.Context, err error) {
	var conflictErr *pkgerrors.ConflictError
	if errors.As(err, &conflictErr) && errors.Is(err, pkgerrors.ErrAborted) {
		r.logger.Warn("process conflict declined, shutting down", "pid", conflictErr.PID, "kind", conflictErr.Kind)
		c.JSON(http.StatusConflict, gin.H{
			"error":   err.Error(),
			"aborted": true,
			"pid":     conflictErr.PID,
		})
		if r.onAbort != nil {
			r.onAbort()
		}
		return
	}

	if errors.Is(err, pkgerrors.ErrNodeIncomplete) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if errors.Is(err, pkgerrors.ErrNodeNotFound) || errors.Is(err, pkgerrors.ErrIndexOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if errors.Is(err, pkgerrors.ErrNodeExists) ||
		errors.Is(err, pkgerrors.ErrNoManagedProcess) ||
		errors.Is(err, pkgerrors.ErrSessionRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if errors.Is(err, pkgerrors.ErrProbeFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	r.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
