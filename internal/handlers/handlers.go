package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Krchnk/valutatrade-hub/internal/accounts"
	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/ingestion"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/trading"
	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const userIDKey = "user_id"

type Handler struct {
	accounts  *accounts.Service
	engine    *trading.Engine
	cache     *rates.Cache
	updater   *ingestion.Updater
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    logrus.FieldLogger
}

func NewHandler(acc *accounts.Service, engine *trading.Engine, cache *rates.Cache, updater *ingestion.Updater, jwtSecret string, logger logrus.FieldLogger) *Handler {
	return &Handler{
		accounts:  acc,
		engine:    engine,
		cache:     cache,
		updater:   updater,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
		logger:    logger,
	}
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind registration request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.accounts.Register(req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("User '%s' registered (id=%d)", user.Username, user.ID),
		"user_id": user.ID,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind login request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.accounts.Login(req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, err := h.generateJWT(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to generate JWT")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	userID := c.GetInt(userIDKey)
	p, err := h.engine.Portfolio(userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	v, err := h.engine.PortfolioValue(p, c.Query("base"))
	if err != nil {
		h.fail(c, err)
		return
	}

	lines := make([]gin.H, 0, len(v.Lines))
	for _, l := range v.Lines {
		line := gin.H{"currency": l.Currency, "balance": l.Balance, "valued": l.Valued}
		if l.Valued {
			line["value"] = l.Value
			line["rate"] = l.Rate
			line["stale"] = l.Stale
		}
		lines = append(lines, line)
	}
	c.JSON(http.StatusOK, gin.H{"base": v.Base, "wallets": lines, "total": v.Total})
}

type fundsRequest struct {
	Currency string      `json:"currency" binding:"required"`
	Amount   json.Number `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	h.adjust(c, h.engine.Deposit)
}

func (h *Handler) Withdraw(c *gin.Context) {
	h.adjust(c, h.engine.Withdraw)
}

func (h *Handler) adjust(c *gin.Context, op func(int, string, string) (decimal.Decimal, error)) {
	var req fundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind funds request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	balance, err := op(c.GetInt(userIDKey), req.Currency, req.Amount.String())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": strings.ToUpper(req.Currency), "new_balance": balance})
}

type tradeRequest struct {
	Currency string      `json:"currency" binding:"required"`
	Amount   json.Number `json:"amount" binding:"required"`
	Base     string      `json:"base"`
}

func (h *Handler) Buy(c *gin.Context) {
	h.trade(c, trading.Buy)
}

func (h *Handler) Sell(c *gin.Context) {
	h.trade(c, trading.Sell)
}

func (h *Handler) trade(c *gin.Context, dir trading.Direction) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind trade request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.engine.ExecuteTrade(c.Request.Context(), c.GetInt(userIDKey), dir, req.Currency, req.Amount.String(), req.Base)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               res.ID,
		"direction":        res.Direction,
		"currency":         res.Currency,
		"amount":           res.Amount,
		"rate":             res.Rate,
		"base":             res.Base,
		"total":            res.Total,
		"currency_balance": res.CurrencyBalance,
		"base_balance":     res.BaseBalance,
		"rate_fresh":       res.RateFresh,
	})
}

func (h *Handler) GetRates(c *gin.Context) {
	snap, err := h.cache.Snapshot()
	if err != nil {
		h.fail(c, err)
		return
	}
	pairs := make(gin.H, len(snap.Quotes))
	for _, q := range snap.Quotes {
		pairs[q.Pair()] = gin.H{
			"rate":       q.Rate,
			"updated_at": q.UpdatedAt,
			"source":     q.Source,
			"fresh":      h.cache.IsFresh(q.UpdatedAt),
		}
	}
	c.JSON(http.StatusOK, gin.H{"pairs": pairs, "last_refresh": snap.LastRefresh})
}

func (h *Handler) GetRate(c *gin.Context) {
	q, err := h.engine.GetRate(c.Param("from"), c.Param("to"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":       q.From,
		"to":         q.To,
		"rate":       q.Rate,
		"updated_at": q.UpdatedAt,
		"source":     q.Source,
	})
}

func (h *Handler) UpdateRates(c *gin.Context) {
	var req struct {
		Source string `json:"source"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	res, err := h.updater.Run(c.Request.Context(), req.Source)
	failed := make(gin.H, len(res.Failed))
	for name, ferr := range res.Failed {
		failed[name] = apperrors.Message(ferr)
	}
	if err != nil {
		h.logger.WithError(err).Error("rates update failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "No rates received", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updated":      res.Written,
		"sources":      res.Sources,
		"failed":       failed,
		"last_refresh": res.RefreshedAt,
	})
}

func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenStr == header {
			h.logger.Error("missing or invalid Authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			h.logger.WithError(err).Error("invalid JWT token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			h.logger.Error("failed to parse JWT claims")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		raw, _ := claims[userIDKey].(string)
		userID, err := strconv.Atoi(raw)
		if err != nil {
			h.logger.WithField("claim", raw).Error("bad user_id claim")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) generateJWT(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIDKey: strconv.Itoa(userID),
		"exp":     time.Now().Add(h.tokenTTL).Unix(),
	})
	return token.SignedString(h.jwtSecret)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	entry := h.logger.WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.JSON(status, gin.H{"error": apperrors.Message(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrRateStale):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrRateUnavailable), errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAPIRequest):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrInsufficientFunds),
		errors.Is(err, apperrors.ErrInvalidAmount),
		errors.Is(err, apperrors.ErrCurrencyNotFound),
		errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
