package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/sim"
)

var startTime = time.Now()

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NewRouter builds the HTTP routes over a session.
func NewRouter(s *Session, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors())

	router.GET("/ws", s.handleWebSocket)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health)
		v1.GET("/snapshot", s.getSnapshot)
		v1.GET("/stats", s.getStats)

		v1.GET("/scene", s.getScene)
		v1.PUT("/scene", s.putScene)

		v1.GET("/presets", listPresets)
		v1.POST("/presets/:name", s.loadPreset)

		transport := v1.Group("/transport")
		{
			transport.POST("/start", s.transport(true))
			transport.POST("/stop", s.transport(false))
			transport.PUT("/tempo", s.putTempo)
		}

		v1.POST("/walls", s.postWall)
		v1.POST("/dispensers", s.postDispenser)
		v1.PUT("/dispensers/:id/steps/:step", s.putStep)
		v1.DELETE("/bodies/:id", s.deleteBody)
	}
	return router
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "bounce",
		"uptime":  time.Since(startTime).String(),
	})
}

// fail maps engine errors onto status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dynamo.ErrUnknownBody), errors.Is(err, ErrUnknownPreset):
		status = http.StatusNotFound
	case errors.Is(err, dynamo.ErrDegenerateGeometry), errors.Is(err, dynamo.ErrWrongKind):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dynamo.ErrDisposed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bodyID(c *gin.Context) (dynamo.BodyID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body id"})
		return 0, false
	}
	return dynamo.BodyID(id), true
}

func (s *Session) getSnapshot(c *gin.Context) {
	var snap dynamo.Snapshot
	if err := s.Do(func(e *sim.Engine) error {
		snap = e.Snapshot()
		snap.Frame = e.Frames()
		snap.Time = e.Time()
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Session) getStats(c *gin.Context) {
	var body gin.H
	if err := s.Do(func(e *sim.Engine) error {
		body = gin.H{
			"frames":     e.Frames(),
			"time":       e.Time(),
			"tempo":      e.Tempo(),
			"running":    e.Sequencer().Running(),
			"collisions": e.Router().Stats(),
			"synth":      e.Guard().Stats(),
			"voices":     e.Voices().Bound(),
			"clients":    s.hub.Len(),
		}
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Session) getScene(c *gin.Context) {
	var scene config.Scene
	if err := s.Do(func(e *sim.Engine) error {
		scene = e.Scene()
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

func (s *Session) putScene(c *gin.Context) {
	var scene config.Scene
	if err := c.ShouldBindJSON(&scene); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.Do(func(e *sim.Engine) error { return e.LoadScene(scene) })
	if err != nil && !errors.Is(err, dynamo.ErrDegenerateGeometry) {
		fail(c, err)
		return
	}
	resp := gin.H{"loaded": scene.Name}
	if err != nil {
		resp["warnings"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func listPresets(c *gin.Context) {
	out := make([]gin.H, 0, len(config.Presets))
	for _, name := range config.ListPresets() {
		p := config.Presets[name]
		out = append(out, gin.H{"name": name, "tempo": p.Tempo, "description": p.Description})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Session) loadPreset(c *gin.Context) {
	if err := s.LoadPreset(c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": c.Param("name")})
}

func (s *Session) transport(start bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var running bool
		err := s.Do(func(e *sim.Engine) error {
			if start {
				e.Sequencer().Start()
			} else {
				e.Sequencer().Stop()
			}
			running = e.Sequencer().Running()
			return nil
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"running": running})
	}
}

func (s *Session) putTempo(c *gin.Context) {
	var req tempoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var tempo int
	if err := s.Do(func(e *sim.Engine) error {
		tempo = e.SetTempo(req.BPM)
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tempo": tempo})
}

func (s *Session) postWall(c *gin.Context) {
	var req wallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.AddWall(req)
	if err != nil {
		fail(c, err)
		return
	}
	var note string
	s.Do(func(e *sim.Engine) error {
		if b, ok := e.Voices().Binding(id); ok {
			note = b.Note.Name
		}
		return nil
	})
	c.JSON(http.StatusCreated, gin.H{"id": id, "note": note})
}

func (s *Session) postDispenser(c *gin.Context) {
	var req dispenserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.AddDispenser(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Session) putStep(c *gin.Context) {
	id, ok := bodyID(c)
	if !ok {
		return
	}
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil || step < 0 || step >= 16 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "step must be 0-15"})
		return
	}
	req := stepRequest{Dispenser: id, Step: step}
	var body struct {
		On *bool `json:"on"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.On = body.On
	}
	on, err := s.SetStep(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispenser": id, "step": step, "on": on})
}

func (s *Session) deleteBody(c *gin.Context) {
	id, ok := bodyID(c)
	if !ok {
		return
	}
	if err := s.Remove(id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Session) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}
	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.join(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump(s.Command)
}

// Serve runs the hub, the frame loop and the HTTP server until ctx ends.
func Serve(ctx context.Context, addr string, s *Session, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: addr, Handler: NewRouter(s, logger)}

	go s.hub.Run(ctx)
	loop := make(chan error, 1)
	go func() { loop <- s.Run(ctx) }()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	case err := <-loop:
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	s.Close()
	return nil
}
