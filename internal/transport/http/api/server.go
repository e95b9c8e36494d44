// Package apihttp 暴露引擎运行状态、交易流水与参数扫描的 HTTP
// 接口。引擎严格单线程,这里从不直接读引擎或仓位簿:查询走
// 事件流维护的快照,指令走引擎自己的事件循环。
package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"banyan/internal/backtest"
	"banyan/internal/engine"
	"banyan/internal/logger"
	"banyan/internal/market"
	"banyan/internal/metrics"
	"banyan/internal/position"
	"banyan/internal/report"
	"banyan/internal/store/journal"
	storemodel "banyan/internal/store/model"
)

// ManualCloser 受理手动平仓指令,由引擎事件循环实现。
type ManualCloser interface {
	CloseManual(ctx context.Context) (*position.Trade, error)
}

// Config 描述 API Server 的依赖。除 Addr 外全部可选:没给的
// 依赖对应的接口返回 503,路由本身始终注册。
type Config struct {
	Addr     string
	Board    *StatusBoard
	Feed     market.Source
	Journal  *journal.Store
	Results  *backtest.ResultStore
	Sweep    *backtest.Sweep
	Specs    *backtest.SpecRegistry
	Closer   ManualCloser
	Metrics  *metrics.Set
	Location *time.Location
}

// Server 对外 API 服务。
type Server struct {
	addr    string
	board   *StatusBoard
	feed    market.Source
	journal *journal.Store
	results *backtest.ResultStore
	sweep   *backtest.Sweep
	specs   *backtest.SpecRegistry
	closer  ManualCloser
	metrics *metrics.Set
	loc     *time.Location
	router  *gin.Engine

	// runCtx 在 Start 里写入,作为 API 触发的后台扫描的父 ctx。
	runCtx context.Context
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:    cfg.Addr,
		board:   cfg.Board,
		feed:    cfg.Feed,
		journal: cfg.Journal,
		results: cfg.Results,
		sweep:   cfg.Sweep,
		specs:   cfg.Specs,
		closer:  cfg.Closer,
		metrics: cfg.Metrics,
		loc:     cfg.Location,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/trades", s.handleTrades)
	api.GET("/summary", s.handleSummary)
	api.GET("/events", s.handleEvents)
	api.POST("/close", s.handleClose)
	api.POST("/sweeps", s.handleSweepStart)
	api.GET("/sweeps", s.handleSweepList)
	api.GET("/sweeps/:id", s.handleSweepDetail)
	api.GET("/sweeps/:id/trades", s.handleSweepTrades)
	api.GET("/sweeps/:id/equity", s.handleSweepEquityHTML)
	api.GET("/sweeps/:id/equity.png", s.handleSweepEquityPNG)
}

func (s *Server) handleStatus(c *gin.Context) {
	out := gin.H{}
	if s.board != nil {
		out["engine"] = s.board.Snapshot()
	}
	if s.feed != nil {
		out["feed"] = s.feed.Stats()
	}
	if s.sweep != nil {
		out["sweep"] = s.sweep.Status()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "流水库未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	q := journal.TradeQuery{
		Day:    c.Query("day"),
		Symbol: c.Query("symbol"),
		Limit:  limit,
		Offset: offset,
	}
	rows, err := s.journal.ListTrades(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.journal.CountTrades(c.Request.Context(), q.Day, q.Symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, m := range rows {
		out = append(out, s.tradeJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out, "total": total})
}

func (s *Server) handleSummary(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "流水库未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	days, err := s.journal.ListDailySummaries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(days))
	for _, d := range days {
		out = append(out, gin.H{
			"day":          d.Day,
			"symbol":       d.Symbol,
			"trades":       d.Trades,
			"wins":         d.Wins,
			"losses":       d.Losses,
			"win_rate":     d.WinRate,
			"gross_profit": d.GrossProfit,
			"gross_loss":   d.GrossLoss,
			"net_pnl":      d.NetPnL,
			"total_costs":  d.TotalCosts,
			"end_capital":  d.EndCapital,
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": out})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "流水库未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	events, err := s.journal.ListEvents(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, ev := range events {
		out = append(out, gin.H{
			"kind":        ev.Kind,
			"position_id": ev.PositionID,
			"symbol":      ev.Symbol,
			"price":       ev.Price,
			"quantity":    ev.Quantity,
			"reason":      ev.Reason,
			"payload":     ev.Payload,
			"tick_time":   s.timeJSON(ev.TickTime),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (s *Server) handleClose(c *gin.Context) {
	if s.closer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "引擎指令通道未启用"})
		return
	}
	tr, err := s.closer.CloseManual(c.Request.Context())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrNoTick):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tr == nil {
		c.JSON(http.StatusOK, gin.H{"closed": false, "message": "no open position"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true, "trade": tr})
}

func (s *Server) handleSweepStart(c *gin.Context) {
	if s.sweep == nil || s.specs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "参数扫描未启用"})
		return
	}
	spec := s.specs.Spec()
	total, err := s.sweep.Begin(s.sweepContext(), spec)
	if err != nil {
		if errors.Is(err, backtest.ErrSweepRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sweep": spec.Name, "combinations": total})
}

func (s *Server) handleSweepList(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), c.Query("sweep"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := gin.H{"runs": runs}
	if s.sweep != nil {
		out["status"] = s.sweep.Status()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSweepDetail(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleSweepTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleSweepEquityHTML(c *gin.Context) {
	input, ok := s.equityInput(c)
	if !ok {
		return
	}
	html, err := report.RenderEquityHTML(input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleSweepEquityPNG(c *gin.Context) {
	if err := report.EnsureHeadlessAvailable(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable,
			gin.H{"error": fmt.Sprintf("headless browser unavailable: %v", err)})
		return
	}
	input, ok := s.equityInput(c)
	if !ok {
		return
	}
	img, err := report.RenderEquityPNG(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.Filename))
	c.Data(http.StatusOK, "image/png", img.Bytes)
}

// equityInput 组装一次扫描组合的资金曲线渲染输入。失败时已经
// 写好响应,调用方直接返回。
func (s *Server) equityInput(c *gin.Context) (report.EquityInput, bool) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "结果存储未启用"})
		return report.EquityInput{}, false
	}
	id := c.Param("id")
	run, err := s.results.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return report.EquityInput{}, false
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5000"))
	points, err := s.results.ListSnapshots(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return report.EquityInput{}, false
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no equity snapshots for this run"})
		return report.EquityInput{}, false
	}
	return report.EquityInput{
		Title:    run.Sweep,
		Tag:      run.Tag,
		Points:   points,
		Stats:    &run.Stats,
		Location: s.loc,
	}, true
}

func (s *Server) sweepContext() context.Context {
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

func (s *Server) tradeJSON(m storemodel.TradeModel) gin.H {
	return gin.H{
		"trade_uid":   m.TradeUID,
		"position_id": m.PositionID,
		"symbol":      m.Symbol,
		"side":        m.Side,
		"entry_time":  s.timeJSON(m.EntryTime),
		"exit_time":   s.timeJSON(m.ExitTime),
		"entry_price": m.EntryPrice,
		"exit_price":  m.ExitPrice,
		"quantity":    m.Quantity,
		"lots":        m.Lots,
		"gross_pnl":   m.GrossPnL,
		"net_pnl":     m.NetPnL,
		"costs":       m.Costs,
		"kind":        position.ExitKind(m.Kind).String(),
		"level":       m.Level,
		"reason":      m.Reason,
		"duration_ms": m.DurationMS,
		"day":         m.Day,
	}
}

func (s *Server) timeJSON(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).In(s.loc)
}

// requestLogger 记录人工操作与接口调用,便于追踪。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务,阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.runCtx = ctx
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
