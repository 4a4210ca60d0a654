package tradingService

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mkarpushin/papertrade/data/repository"
	"github.com/mkarpushin/papertrade/internal/externalApi"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/service"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type QuoteApi interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

type Repository interface {
	CreateUser(ctx context.Context, username, passwordHash string, startingCash decimal.Decimal) (userID int64, err error)
	GetUserByUsername(ctx context.Context, username string) (user model.User, err error)
	UsernameExists(ctx context.Context, username string) (exists bool, err error)
	GetCash(ctx context.Context, userID int64) (cash decimal.Decimal, err error)
	ExecuteBuy(ctx context.Context, txn model.Transaction) (err error)
	ExecuteSell(ctx context.Context, txn model.Transaction) (err error)
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (err error)
	GetHoldings(ctx context.Context, userID int64) (holdings []model.Holding, err error)
	GetTransactions(ctx context.Context, userID int64) (transactions []model.Transaction, err error)
	GetUserIDs(ctx context.Context) (userIDs []int64, err error)
	UpsertValuation(ctx context.Context, userID int64, date time.Time, total decimal.Decimal) (err error)
	GetValuations(ctx context.Context, userID int64) (valuations []model.Valuation, err error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, transactions []model.Transaction) (fileBytes []byte, fileExtension string, err error)
}

type TradingService struct {
	repo         Repository
	quoteApi     QuoteApi
	reportGen    ReportGenerator
	startingCash decimal.Decimal
}

func New(repo Repository, quoteApi QuoteApi, reportGen ReportGenerator, startingCash decimal.Decimal) *TradingService {
	return &TradingService{
		repo:         repo,
		quoteApi:     quoteApi,
		reportGen:    reportGen,
		startingCash: startingCash,
	}
}

// Register hashes the password and inserts the user in a single statement.
// Uniqueness is enforced by the DB constraint, not a pre-check, so two
// concurrent registrations can't both succeed.
func (s *TradingService) Register(ctx context.Context, username, password string) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Register"

	slog.Debug("Register start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Register finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("got error from bcrypt.GenerateFromPassword", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	userID, err := s.repo.CreateUser(ctx, username, string(hash), s.startingCash)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return model.User{}, service.ErrUsernameTaken
		}
		slog.Error("got error from repo.CreateUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	return model.User{UserID: userID, Username: username, Cash: s.startingCash}, nil
}

func (s *TradingService) Authenticate(ctx context.Context, username, password string) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Authenticate"

	slog.Debug("Authenticate start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Authenticate finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	user, err = s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, service.ErrInvalidCredentials
		}
		slog.Error("got error from repo.GetUserByUsername", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, service.ErrInvalidCredentials
	}

	return user, nil
}

// IsUsernameAvailable reports whether the username can still be registered.
// Advisory only: Register re-validates through the unique constraint.
func (s *TradingService) IsUsernameAvailable(ctx context.Context, username string) (available bool, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.IsUsernameAvailable"

	slog.Debug("IsUsernameAvailable start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("IsUsernameAvailable finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if username == "" {
		return false, nil
	}

	exists, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		slog.Error("got error from repo.UsernameExists", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return false, err
	}

	return !exists, nil
}

func (s *TradingService) GetQuote(ctx context.Context, symbol string) (quote model.Quote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetQuote"

	slog.Debug("GetQuote start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	defer func() {
		slog.Debug("GetQuote finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	quote, err = s.quoteApi.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			slog.Warn("symbol not found in quote provider", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
			return model.Quote{}, service.ErrUnknownSymbol
		}
		slog.Error("got error from quoteApi.GetQuote", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Quote{}, err
	}

	return quote, nil
}

// Buy looks up the live price and applies ledger-insert + cash-debit as one
// atomic unit. The funds check happens inside the repository transaction.
func (s *TradingService) Buy(ctx context.Context, userID int64, symbol string, shares int64) (txn model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Buy"

	slog.Debug("Buy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.Int64("shares", shares))
	defer func() {
		slog.Debug("Buy finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return model.Transaction{}, err
	}

	txn = model.Transaction{
		UserID: userID,
		Symbol: quote.Symbol,
		Shares: shares,
		Price:  quote.Price,
		OpType: model.OpTypeBuy,
		Name:   quote.Name,
	}

	err = s.repo.ExecuteBuy(ctx, txn)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return model.Transaction{}, service.ErrInsufficientFunds
		}
		slog.Error("got error from repo.ExecuteBuy", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Transaction{}, err
	}

	return txn, nil
}

// Sell mirrors Buy: the holding check runs inside the repository
// transaction against the current ledger sum, so concurrent sells can't
// both pass it.
func (s *TradingService) Sell(ctx context.Context, userID int64, symbol string, shares int64) (txn model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Sell"

	slog.Debug("Sell start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.Int64("shares", shares))
	defer func() {
		slog.Debug("Sell finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
	}()

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return model.Transaction{}, err
	}

	txn = model.Transaction{
		UserID: userID,
		Symbol: quote.Symbol,
		Shares: shares,
		Price:  quote.Price,
		OpType: model.OpTypeSell,
		Name:   quote.Name,
	}

	err = s.repo.ExecuteSell(ctx, txn)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientShares) {
			return model.Transaction{}, service.ErrInsufficientShares
		}
		slog.Error("got error from repo.ExecuteSell", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Transaction{}, err
	}

	return txn, nil
}

// Deposit requires a positive amount. The original design accepted any
// value here; that was a defect, not a feature.
func (s *TradingService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.Deposit"

	slog.Debug("Deposit start", slog.String("rqID", rqID), slog.String("op", op), slog.String("amount", amount.String()))
	defer func() {
		slog.Debug("Deposit finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if amount.LessThanOrEqual(decimal.Zero) {
		return service.ErrInvalidAmount
	}

	err = s.repo.Deposit(ctx, userID, amount)
	if err != nil {
		slog.Error("got error from repo.Deposit", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetPortfolio joins net holdings with live prices. Any quote failure
// fails the whole report.
func (s *TradingService) GetPortfolio(ctx context.Context, userID int64) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetPortfolio"

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetPortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	cash, err := s.repo.GetCash(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetCash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	holdings, err := s.repo.GetHoldings(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetHoldings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	portfolio.Cash = cash
	portfolio.TotalValue = cash

	for _, holding := range holdings {
		quote, err := s.GetQuote(ctx, holding.Symbol)
		if err != nil {
			return model.Portfolio{}, err
		}

		value := quote.Price.Mul(decimal.NewFromInt(holding.NetShares))
		portfolio.Positions = append(portfolio.Positions, model.PortfolioPosition{
			Holding:      holding,
			CurrentPrice: quote.Price,
			CurrentValue: value,
		})
		portfolio.TotalValue = portfolio.TotalValue.Add(value)
	}

	return portfolio, nil
}

func (s *TradingService) GetHoldings(ctx context.Context, userID int64) ([]model.Holding, error) {
	return s.repo.GetHoldings(ctx, userID)
}

func (s *TradingService) GetHistory(ctx context.Context, userID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.GetHistory"

	slog.Debug("GetHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("GetHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	transactions, err = s.repo.GetTransactions(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return transactions, nil
}

func (s *TradingService) GetValuations(ctx context.Context, userID int64) ([]model.Valuation, error) {
	return s.repo.GetValuations(ctx, userID)
}

func (s *TradingService) ExportHistory(ctx context.Context, userID int64) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.ExportHistory"

	slog.Debug("ExportHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		slog.Debug("ExportHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	}()

	transactions, err := s.repo.GetTransactions(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	return s.reportGen.Generate(ctx, transactions)
}

// SnapshotValuations records every user's current total account value.
// Runs from the scheduler; a failure for one user doesn't stop the rest.
func (s *TradingService) SnapshotValuations(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "TradingService.SnapshotValuations"

	slog.Debug("SnapshotValuations start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("SnapshotValuations finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	userIDs, err := s.repo.GetUserIDs(ctx)
	if err != nil {
		slog.Error("got error from repo.GetUserIDs", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	var lastErr error
	for _, userID := range userIDs {
		portfolio, err := s.GetPortfolio(ctx, userID)
		if err != nil {
			slog.Error("can't value account", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("err", err.Error()))
			lastErr = err
			continue
		}

		err = s.repo.UpsertValuation(ctx, userID, today, portfolio.TotalValue)
		if err != nil {
			slog.Error("got error from repo.UpsertValuation", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("err", err.Error()))
			lastErr = err
		}
	}

	return lastErr
}
