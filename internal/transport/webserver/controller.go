package webserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/service"
	"github.com/mkarpushin/papertrade/internal/transport/webserver/middleware"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/shopspring/decimal"
)

const (
	internalErrMsg = "something went wrong"
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type TradingService interface {
	Register(ctx context.Context, username, password string) (model.User, error)
	Authenticate(ctx context.Context, username, password string) (model.User, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	Buy(ctx context.Context, userID int64, symbol string, shares int64) (model.Transaction, error)
	Sell(ctx context.Context, userID int64, symbol string, shares int64) (model.Transaction, error)
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) error
	GetPortfolio(ctx context.Context, userID int64) (model.Portfolio, error)
	GetHoldings(ctx context.Context, userID int64) ([]model.Holding, error)
	GetHistory(ctx context.Context, userID int64) ([]model.Transaction, error)
	GetValuations(ctx context.Context, userID int64) ([]model.Valuation, error)
	ExportHistory(ctx context.Context, userID int64) ([]byte, string, error)
}

type Session interface {
	Create(ctx context.Context, sess model.Session) (token string, err error)
	Get(ctx context.Context, token string) (model.Session, error)
	Delete(ctx context.Context, token string) error
}

type Controller struct {
	tradingService TradingService
	session        Session
}

func NewController(tradingService TradingService, session Session) *Controller {
	return &Controller{
		tradingService: tradingService,
		session:        session,
	}
}

// apology renders the user-facing error page, CS50 style: a message and a
// status code.
func (ctrl *Controller) apology(c *gin.Context, status int, msg string) {
	c.HTML(status, "apology.html", gin.H{"Message": msg, "Code": status})
}

func sessionFromCtx(c *gin.Context) model.Session {
	sess, _ := c.MustGet("session").(model.Session)
	return sess
}

func (ctrl *Controller) bindSession(c *gin.Context, ctx context.Context, user model.User) error {
	token, err := ctrl.session.Create(ctx, model.Session{UserID: user.UserID, Username: user.Username})
	if err != nil {
		return err
	}
	// maxAge 0 leaves Max-Age off the cookie, so it dies with the browser
	// session; the server-side record expires on its own TTL
	c.SetCookie(middleware.SessionCookie, token, 0, "/", "", false, true)
	return nil
}

func (ctrl *Controller) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", nil)
}

func (ctrl *Controller) Login(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	username := c.PostForm("username")
	password := c.PostForm("password")

	if username == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide username")
		return
	}
	if password == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide password")
		return
	}

	user, err := ctrl.tradingService.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			ctrl.apology(c, http.StatusForbidden, "invalid username and/or password")
			return
		}
		slog.Error("got error from tradingService.Authenticate", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	if err := ctrl.bindSession(c, ctx, user); err != nil {
		slog.Error("got error from session.Create", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) Logout(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)

	if token, err := c.Cookie(middleware.SessionCookie); err == nil {
		_ = ctrl.session.Delete(ctx, token)
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", nil)
}

func (ctrl *Controller) Register(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	username := c.PostForm("username")
	password := c.PostForm("password")
	confirmation := c.PostForm("confirmation")

	if username == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide username")
		return
	}
	if password == "" || confirmation == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide password")
		return
	}
	if password != confirmation {
		ctrl.apology(c, http.StatusForbidden, "passwords must match")
		return
	}

	user, err := ctrl.tradingService.Register(ctx, username, password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			ctrl.apology(c, http.StatusForbidden, "username not available")
			return
		}
		slog.Error("got error from tradingService.Register", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	if err := ctrl.bindSession(c, ctx, user); err != nil {
		slog.Error("got error from session.Create", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// Check powers the registration form's live availability hint. Advisory
// only: registration re-validates through the unique constraint.
func (ctrl *Controller) Check(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	available, err := ctrl.tradingService.IsUsernameAvailable(ctx, c.Query("username"))
	if err != nil {
		slog.Error("got error from tradingService.IsUsernameAvailable", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrMsg})
		return
	}

	c.JSON(http.StatusOK, available)
}

func (ctrl *Controller) Index(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	portfolio, err := ctrl.tradingService.GetPortfolio(ctx, sess.UserID)
	if err != nil {
		slog.Error("got error from tradingService.GetPortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Username":  sess.Username,
		"Positions": portfolio.Positions,
		"Cash":      portfolio.Cash.StringFixed(2),
		"Total":     portfolio.TotalValue.StringFixed(2),
	})
}

func (ctrl *Controller) BuyPage(c *gin.Context) {
	c.HTML(http.StatusOK, "buy.html", nil)
}

func (ctrl *Controller) Buy(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	symbol := strings.TrimSpace(c.PostForm("symbol"))
	if symbol == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide symbol")
		return
	}

	shares, err := strconv.ParseInt(c.PostForm("shares"), 10, 64)
	if err != nil || shares <= 0 {
		ctrl.apology(c, http.StatusForbidden, "please provide a valid number of shares")
		return
	}

	_, err = ctrl.tradingService.Buy(ctx, sess.UserID, symbol, shares)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownSymbol):
			ctrl.apology(c, http.StatusForbidden, "please provide a valid stock symbol")
		case errors.Is(err, service.ErrInsufficientFunds):
			ctrl.apology(c, http.StatusForbidden, "not enough cash")
		default:
			slog.Error("got error from tradingService.Buy", slog.String("rqID", rqID), slog.String("err", err.Error()))
			ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		}
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) SellPage(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	holdings, err := ctrl.tradingService.GetHoldings(ctx, sess.UserID)
	if err != nil {
		slog.Error("got error from tradingService.GetHoldings", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.HTML(http.StatusOK, "sell.html", gin.H{"Holdings": holdings})
}

func (ctrl *Controller) Sell(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	symbol := strings.TrimSpace(c.PostForm("symbol"))
	if symbol == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide symbol")
		return
	}

	shares, err := strconv.ParseInt(c.PostForm("shares"), 10, 64)
	if err != nil || shares <= 0 {
		ctrl.apology(c, http.StatusForbidden, "please provide a valid number of shares")
		return
	}

	_, err = ctrl.tradingService.Sell(ctx, sess.UserID, symbol, shares)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownSymbol):
			ctrl.apology(c, http.StatusForbidden, "please provide a valid stock symbol")
		case errors.Is(err, service.ErrInsufficientShares):
			ctrl.apology(c, http.StatusForbidden, "you don't own that many shares")
		default:
			slog.Error("got error from tradingService.Sell", slog.String("rqID", rqID), slog.String("err", err.Error()))
			ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		}
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) QuotePage(c *gin.Context) {
	c.HTML(http.StatusOK, "quote.html", nil)
}

func (ctrl *Controller) Quote(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	symbol := strings.TrimSpace(c.PostForm("symbol"))
	if symbol == "" {
		ctrl.apology(c, http.StatusForbidden, "must provide symbol")
		return
	}

	quote, err := ctrl.tradingService.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, service.ErrUnknownSymbol) {
			ctrl.apology(c, http.StatusForbidden, "please provide a valid stock symbol")
			return
		}
		slog.Error("got error from tradingService.GetQuote", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.HTML(http.StatusOK, "quoted.html", gin.H{
		"Symbol": quote.Symbol,
		"Name":   quote.Name,
		"Price":  quote.Price.StringFixed(2),
	})
}

func (ctrl *Controller) Deposit(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	amount, err := decimal.NewFromString(c.PostForm("cash"))
	if err != nil {
		ctrl.apology(c, http.StatusForbidden, "please provide a valid amount")
		return
	}

	err = ctrl.tradingService.Deposit(ctx, sess.UserID, amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			ctrl.apology(c, http.StatusForbidden, "deposit amount must be positive")
			return
		}
		slog.Error("got error from tradingService.Deposit", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (ctrl *Controller) History(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	transactions, err := ctrl.tradingService.GetHistory(ctx, sess.UserID)
	if err != nil {
		slog.Error("got error from tradingService.GetHistory", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	valuations, err := ctrl.tradingService.GetValuations(ctx, sess.UserID)
	if err != nil {
		slog.Error("got error from tradingService.GetValuations", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.HTML(http.StatusOK, "history.html", gin.H{
		"Transactions": transactions,
		"Valuations":   valuations,
	})
}

func (ctrl *Controller) Export(c *gin.Context) {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	sess := sessionFromCtx(c)

	fileBytes, fileExtension, err := ctrl.tradingService.ExportHistory(ctx, sess.UserID)
	if err != nil {
		slog.Error("got error from tradingService.ExportHistory", slog.String("rqID", rqID), slog.String("err", err.Error()))
		ctrl.apology(c, http.StatusInternalServerError, internalErrMsg)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="history`+fileExtension+`"`)
	c.Data(http.StatusOK, xlsxMIME, fileBytes)
}
