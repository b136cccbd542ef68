package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/cdrbridge/internal/auth"
	"github.com/danmuck/cdrbridge/internal/protocol/schema"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AdminServer exposes health, metrics and schema listings for one process.
type AdminServer struct {
	Node     string
	Started  time.Time
	registry *schema.Registry
	router   *gin.Engine
	log      zerolog.Logger

	mu        sync.RWMutex
	status    map[string]func() any
	validator auth.Validator
}

type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaInfo struct {
	Name   string      `json:"name"`
	Fields []FieldInfo `json:"fields"`
}

type ServiceInfo struct {
	Name     string `json:"name"`
	Request  string `json:"request"`
	Response string `json:"response"`
}

func NewAdminServer(node string, registry *schema.Registry, logger zerolog.Logger) *AdminServer {
	RegisterMetrics()
	if registry == nil {
		registry = schema.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestObserver(node, logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &AdminServer{
		Node:     node,
		Started:  time.Now(),
		registry: registry,
		router:   r,
		log:      logger,
		status:   make(map[string]func() any),
	}
	a.registerRoutes()
	return a
}

// Expose publishes the value returned by fn under /status/<name>.
func (a *AdminServer) Expose(name string, fn func() any) {
	a.mu.Lock()
	a.status[name] = fn
	a.mu.Unlock()
}

// RequireToken guards every route except /health with a bearer token.
func (a *AdminServer) RequireToken(v auth.Validator) {
	a.mu.Lock()
	a.validator = v
	a.mu.Unlock()
}

func (a *AdminServer) authorize(c *gin.Context) {
	a.mu.RLock()
	v := a.validator
	a.mu.RUnlock()
	if v == nil {
		c.Next()
		return
	}
	if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func (a *AdminServer) Handler() http.Handler {
	return a.router
}

func (a *AdminServer) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"node":   a.Node,
			"uptime": time.Since(a.Started).String(),
		})
	})

	routes := a.router.Group("/", a.authorize)
	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/schemas", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"schemas":  a.schemas(),
			"services": a.services(),
		})
	})

	routes.GET("/status/:name", func(c *gin.Context) {
		a.mu.RLock()
		fn, ok := a.status[c.Param("name")]
		a.mu.RUnlock()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown status"})
			return
		}
		c.JSON(http.StatusOK, fn())
	})
}

func (a *AdminServer) schemas() []SchemaInfo {
	names := a.registry.Names()
	out := make([]SchemaInfo, 0, len(names))
	for _, name := range names {
		s, ok := a.registry.Resolve(name)
		if !ok {
			continue
		}
		info := SchemaInfo{Name: s.Name, Fields: make([]FieldInfo, 0, len(s.Fields))}
		for _, f := range s.Fields {
			info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Type: f.Type.String()})
		}
		out = append(out, info)
	}
	return out
}

func (a *AdminServer) services() []ServiceInfo {
	names := a.registry.ServiceNames()
	out := make([]ServiceInfo, 0, len(names))
	for _, name := range names {
		svc, ok := a.registry.ResolveService(name)
		if !ok {
			continue
		}
		out = append(out, ServiceInfo{Name: svc.Name, Request: svc.Request.Name, Response: svc.Response.Name})
	}
	return out
}

// Serve listens on addr until ctx ends. An empty addr disables the server.
func (a *AdminServer) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.ServeListener(ctx, ln)
}

func (a *AdminServer) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
