package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/registry"
	"github.com/loykin/svcwatch/internal/store"
	"github.com/loykin/svcwatch/internal/supervisor"
)

// Router exposes the registry over HTTP.
// Endpoints, relative to basePath:
//
//	GET    /services                  status rows
//	GET    /services/:index           {config, status}
//	POST   /services                  add
//	PUT    /services/:index           update
//	DELETE /services/:index           stop and delete
//	POST   /services/:index/start     start (?async=true answers 202)
//	POST   /services/:index/stop      stop
//	POST   /services/:index/restart   restart
//	POST   /services/start-all        start every stopped service
//	POST   /services/stop-all         stop every service
//	GET    /settings                  settings
//	PUT    /settings                  update settings
//	GET    /events                    recent event lines (?limit=N)
//	GET    /events/ws                 websocket stream of event lines
//
// POST, PUT and DELETE must carry Content-Type: application/json.
type Router struct {
	reg      *registry.Registry
	bus      *events.Bus
	log      *slog.Logger
	basePath string
	token    string
}

// NewRouter constructs a Router. bus may be nil, in which case the event
// endpoints answer 404.
func NewRouter(reg *registry.Registry, bus *events.Bus, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{reg: reg, bus: bus, log: log, basePath: sanitizeBase(basePath)}
}

// SetToken makes every endpoint require "Authorization: Bearer <token>".
// An empty token disables the check.
func (r *Router) SetToken(token string) { r.token = token }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath, tokenAuth(r.token), requireJSON())
	group.GET("/services", r.handleList)
	group.GET("/services/:index", r.handleGet)
	group.POST("/services", r.handleAdd)
	group.PUT("/services/:index", r.handleUpdate)
	group.DELETE("/services/:index", r.handleDelete)
	group.POST("/services/:index/start", r.handleStart)
	group.POST("/services/:index/stop", r.handleStop)
	group.POST("/services/:index/restart", r.handleRestart)
	group.POST("/services/start-all", r.handleStartAll)
	group.POST("/services/stop-all", r.handleStopAll)
	group.GET("/settings", r.handleGetSettings)
	group.PUT("/settings", r.handleUpdateSettings)
	if r.bus != nil {
		group.GET("/events", r.handleEvents)
		group.GET("/events/ws", r.handleEventStream)
	}
	return g
}

// NewServer builds an HTTP server on addr using this router. The caller runs
// ListenAndServe and Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start and restart block for the confirmation window
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type resultResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Index   *int   `json:"index,omitempty"`
}

type detailResp struct {
	Config store.Service `json:"config"`
	Status registry.Row  `json:"status"`
}

func ok(c *gin.Context, code int, msg string) {
	writeJSON(c, code, resultResp{Success: true, Message: msg})
}

// fail maps registry and supervisor errors to HTTP status codes.
func (r *Router) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrInvalidIndex):
		code = http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidService),
		errors.Is(err, registry.ErrInvalidSettings):
		code = http.StatusBadRequest
	case errors.Is(err, registry.ErrDuplicateName),
		errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrLaunchAborted):
		code = http.StatusConflict
	case errors.Is(err, supervisor.ErrConfigInvalid),
		errors.Is(err, supervisor.ErrSpawnFailed),
		errors.Is(err, supervisor.ErrLaunchVerificationFailed):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		r.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	writeJSON(c, code, resultResp{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, resultResp{Success: false, Message: msg})
}

func (r *Router) index(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeJSON(c, http.StatusNotFound, resultResp{Success: false, Message: fmt.Sprintf("%v: %q", registry.ErrInvalidIndex, c.Param("index"))})
		return 0, false
	}
	return i, true
}

func (r *Router) bindService(c *gin.Context) (store.Service, bool) {
	var svc store.Service
	if err := c.ShouldBindJSON(&svc); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return svc, false
	}
	if !isSafeAbsPath(svc.Executable) || svc.Executable == "" {
		badRequest(c, "invalid executable: must be absolute path without traversal")
		return svc, false
	}
	if !isSafeAbsPath(svc.WorkDir) || svc.WorkDir == "" {
		badRequest(c, "invalid work_dir: must be absolute path without traversal")
		return svc, false
	}
	return svc, true
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.StatusAll())
}

func (r *Router) handleGet(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	svc, err := r.reg.Get(i)
	if err != nil {
		r.fail(c, err)
		return
	}
	row, err := r.reg.Status(i)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, detailResp{Config: svc, Status: row})
}

func (r *Router) handleAdd(c *gin.Context) {
	svc, valid := r.bindService(c)
	if !valid {
		return
	}
	i, err := r.reg.Add(svc)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, resultResp{Success: true, Message: "service added", Index: &i})
}

func (r *Router) handleUpdate(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	svc, valid := r.bindService(c)
	if !valid {
		return
	}
	if err := r.reg.Update(i, svc); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "service updated")
}

func (r *Router) handleDelete(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	if err := r.reg.Delete(i); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "service deleted")
}

func (r *Router) handleStart(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := r.reg.StartAsync(i); err != nil {
			r.fail(c, err)
			return
		}
		ok(c, http.StatusAccepted, "service starting")
		return
	}
	if err := r.reg.Start(c.Request.Context(), i); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "service started")
}

func (r *Router) handleStop(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	if err := r.reg.Stop(i); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "service stopped")
}

func (r *Router) handleRestart(c *gin.Context) {
	i, valid := r.index(c)
	if !valid {
		return
	}
	if err := r.reg.Restart(c.Request.Context(), i); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "service restarted")
}

type startAllResp struct {
	resultResp
	registry.StartAllResult
}

func (r *Router) handleStartAll(c *gin.Context) {
	// Launches continue even if the client goes away.
	res := r.reg.StartAll(context.WithoutCancel(c.Request.Context()))
	msg := fmt.Sprintf("start all finished: %d started, %d skipped, %d failed", res.Started, res.Skipped, res.Failed)
	writeJSON(c, http.StatusOK, startAllResp{
		resultResp:     resultResp{Success: res.Failed == 0, Message: msg},
		StartAllResult: res,
	})
}

func (r *Router) handleStopAll(c *gin.Context) {
	n := r.reg.StopAll()
	ok(c, http.StatusOK, fmt.Sprintf("stopped %d services", n))
}

func (r *Router) handleGetSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.Settings())
}

func (r *Router) handleUpdateSettings(c *gin.Context) {
	var s store.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if err := r.reg.UpdateSettings(s); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "settings saved")
}
