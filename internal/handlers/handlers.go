package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"papertrade/internal/account"
	"papertrade/internal/middleware"
	"papertrade/internal/models"
	"papertrade/internal/portfolio"
	"papertrade/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	engine   *portfolio.Engine
	accounts *account.Service
	log      *logrus.Logger
}

func NewHandler(e *portfolio.Engine, a *account.Service, log *logrus.Logger) *Handler {
	return &Handler{engine: e, accounts: a, log: log}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/users", h.CreateUser)
	r.GET("/quote/:symbol", h.GetQuote)

	u := r.Group("/users/:userId")
	u.GET("/portfolio", h.GetPortfolio)
	u.GET("/holdings", h.GetHoldings)
	u.GET("/history", h.GetHistory)
	u.POST("/buy", h.Buy)
	u.POST("/sell", h.Sell)
}

type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// TradeRequest carries shares as a json.Number so "10", 10 and 1.5 all reach
// share parsing and get the same validation message.
type TradeRequest struct {
	Symbol string      `json:"symbol"`
	Shares json.Number `json:"shares"`
}

type TradeResponse struct {
	TransactionID int64  `json:"transaction_id"`
	Symbol        string `json:"symbol"`
	Shares        int64  `json:"shares"`
	Cash          string `json:"cash,omitempty"`
	CashUSD       string `json:"cash_usd,omitempty"`
}

type PortfolioResponse struct {
	portfolio.View
	CashUSD  string `json:"cash_usd"`
	TotalUSD string `json:"total_usd"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	id, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": id})
}

func (h *Handler) GetQuote(c *gin.Context) {
	q, err := h.engine.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": q.Symbol, "name": q.Name, "price": q.Price, "price_usd": models.USD(q.Price)})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	v, err := h.engine.Portfolio(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, PortfolioResponse{View: v, CashUSD: models.USD(v.Cash), TotalUSD: models.USD(v.Total)})
}

func (h *Handler) GetHoldings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	rows, err := h.engine.Holdings(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetHistory(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	rows, err := h.engine.History(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) Buy(c *gin.Context) {
	h.trade(c, models.Buy)
}

func (h *Handler) Sell(c *gin.Context) {
	h.trade(c, models.Sell)
}

func (h *Handler) trade(c *gin.Context, typ models.TxType) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	shares, err := portfolio.ParseShares(req.Shares.String())
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	var id int64
	if typ == models.Buy {
		id, err = h.engine.Buy(ctx, userID, req.Symbol, shares)
	} else {
		id, err = h.engine.Sell(ctx, userID, req.Symbol, shares)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	res := TradeResponse{TransactionID: id, Symbol: service.NormalizeSymbol(req.Symbol), Shares: shares}
	// The trade is committed; a failed balance read only leaves Cash empty.
	if cash, err := h.engine.Cash(ctx, userID); err == nil {
		res.Cash = cash.String()
		res.CashUSD = models.USD(cash)
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) badBody(c *gin.Context, err error) {
	h.log.WithField("request_id", middleware.GetRequestID(c)).Warnf("invalid body: %v", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// fail writes err with the status of its kind. Storage failures are hidden
// behind a generic retry message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusServiceUnavailable {
		h.log.WithField("request_id", middleware.GetRequestID(c)).Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "temporarily unavailable, try again"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": portfolio.KindOf(err).Error()})
}

// StatusOf maps an engine error kind to an HTTP status.
func StatusOf(err error) int {
	switch portfolio.KindOf(err) {
	case nil:
		return http.StatusOK
	case portfolio.ErrValidation, portfolio.ErrUnknownSymbol:
		return http.StatusBadRequest
	case portfolio.ErrNotFound:
		return http.StatusNotFound
	case portfolio.ErrInsufficientFunds, portfolio.ErrInsufficientShares:
		return http.StatusUnprocessableEntity
	}
	return http.StatusServiceUnavailable
}
