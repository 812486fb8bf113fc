package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okx-signal-bot/internal/engine"
	"okx-signal-bot/internal/monitor"
	"okx-signal-bot/internal/symbols"
)

// webhook ingests one TradingView alert. The payload is parsed as a
// loose map so the audit trail keeps exactly what the sender posted,
// minus the shared secret.
func (s *Server) webhook(c *gin.Context) {
	cfg := s.cfg.Current()

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.rejectWebhook(c, http.StatusBadRequest, "invalid payload")
		return
	}

	if stringField(payload, "secret") != cfg.Webhook.Secret {
		s.rejectWebhook(c, http.StatusUnauthorized, "bad secret")
		return
	}

	action := strings.ToUpper(stringField(payload, "action"))
	if action != "BUY" && action != "SELL" {
		s.rejectWebhook(c, http.StatusBadRequest, "bad action")
		return
	}

	raw := stringField(payload, "symbol")
	if raw == "" {
		raw = stringField(payload, "ticker")
	}
	symbol := symbols.Normalize(raw, cfg.Trade.Symbols)
	if !symbols.Allowed(symbol, cfg.Trade.Symbols) {
		s.rejectWebhook(c, http.StatusBadRequest, "symbol not allowed: "+symbol)
		return
	}

	delete(payload, "secret")

	res, err := s.engine.OnSignal(c.Request.Context(), engine.Signal{
		Symbol:    symbol,
		Action:    action,
		BarTime:   stringField(payload, "bar_time"),
		Timeframe: stringField(payload, "timeframe"),
		Raw:       payload,
	})
	if err != nil {
		s.log.Error("signal execution failed",
			zap.String("symbol", symbol),
			zap.String("action", action),
			zap.Error(err))
		s.rejectWebhook(c, http.StatusInternalServerError, err.Error())
		return
	}

	monitor.IncWebhookRequest(http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (s *Server) rejectWebhook(c *gin.Context, status int, msg string) {
	monitor.IncWebhookRequest(status)
	c.JSON(status, gin.H{"ok": false, "error": msg})
}

// stringField coerces a JSON field to string. TradingView templates
// sometimes emit bar times as numbers.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.StateSnapshot())
}

func (s *Server) setPause(c *gin.Context) {
	var req struct {
		Paused *bool  `json:"paused"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Paused == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paused (bool) is required"})
		return
	}
	c.JSON(http.StatusOK, s.engine.SetPaused(*req.Paused, req.Reason))
}

func (s *Server) setCloseOnly(c *gin.Context) {
	var req struct {
		CloseOnly *bool `json:"close_only"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CloseOnly == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "close_only (bool) is required"})
		return
	}
	c.JSON(http.StatusOK, s.engine.SetCloseOnly(*req.CloseOnly))
}

func (s *Server) emergencyClose(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	cfg := s.cfg.Current()
	symbol := symbols.Normalize(req.Symbol, cfg.Trade.Symbols)
	if !symbols.Allowed(symbol, cfg.Trade.Symbols) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol not allowed: " + symbol})
		return
	}

	res, err := s.engine.EmergencyClose(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "result": res})
}

func (s *Server) emergencyCloseAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": s.engine.EmergencyCloseAll(c.Request.Context())})
}

func (s *Server) runReconcile(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Reconcile(c.Request.Context()))
}
