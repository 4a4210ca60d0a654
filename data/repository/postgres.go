package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/internal/converter/dbConverter"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/model/dbModel"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/shopspring/decimal"
)

const uniqueViolationCode = "23505"

type Postgres struct {
	db  *sqlx.DB
	cfg *config.Config
}

func NewPostgres(cfg *config.Config, db *sqlx.DB) *Postgres {
	return &Postgres{db: db, cfg: cfg}
}

func (r *Postgres) CreateUser(ctx context.Context, username, passwordHash string, startingCash decimal.Decimal) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CreateUser"
	query := `INSERT INTO users(username, password_hash, cash) VALUES($1, $2, $3) RETURNING user_id`

	slog.Debug("CreateUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, username, passwordHash, startingCash).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) GetUserByUsername(ctx context.Context, username string) (user model.User, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUserByUsername"
	query := `SELECT user_id, username, password_hash, cash, dt_create FROM users WHERE username = $1`

	slog.Debug("GetUserByUsername start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			slog.Error("GetUserByUsername failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserByUsername completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbUser := dbModel.User{}
	err = r.db.QueryRowxContext(ctx, query, username).StructScan(&dbUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}

	return dbConverter.ConvertUser(dbUser), nil
}

func (r *Postgres) UsernameExists(ctx context.Context, username string) (exists bool, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UsernameExists"
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	slog.Debug("UsernameExists start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UsernameExists failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UsernameExists completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, username).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *Postgres) GetCash(ctx context.Context, userID int64) (cash decimal.Decimal, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetCash"
	query := `SELECT cash FROM users WHERE user_id = $1`

	slog.Debug("GetCash start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetCash failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetCash completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.db.QueryRowContext(ctx, query, userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, err
	}

	return cash, nil
}

// ExecuteBuy appends the buy to the ledger and debits cash as one
// transaction. The user row is locked first, so concurrent operations on
// the same account serialize and the funds check can't go stale.
func (r *Postgres) ExecuteBuy(ctx context.Context, txn model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ExecuteBuy"

	slog.Debug("ExecuteBuy start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", txn.Symbol), slog.Int64("shares", txn.Shares))
	defer func() {
		if err != nil && !errors.Is(err, ErrInsufficientFunds) {
			slog.Error("ExecuteBuy failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ExecuteBuy completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT cash FROM users WHERE user_id = $1 FOR UPDATE`, txn.UserID).Scan(&cash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	total := txn.Total()
	if cash.LessThan(total) {
		return ErrInsufficientFunds
	}

	insertQuery := `INSERT INTO transactions(user_id, symbol, shares, price, op_type, name) VALUES($1, $2, $3, $4, $5, $6)`
	_, err = tx.ExecContext(ctx, insertQuery, txn.UserID, txn.Symbol, txn.Shares, txn.Price, model.OpTypeBuy, txn.Name)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET cash = cash - $1 WHERE user_id = $2`, total, txn.UserID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ExecuteSell checks the net holding, appends the sell (negative shares)
// and credits cash as one transaction. txn.Shares must be the positive
// number of shares to sell.
func (r *Postgres) ExecuteSell(ctx context.Context, txn model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ExecuteSell"

	slog.Debug("ExecuteSell start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", txn.Symbol), slog.Int64("shares", txn.Shares))
	defer func() {
		if err != nil && !errors.Is(err, ErrInsufficientShares) {
			slog.Error("ExecuteSell failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ExecuteSell completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// lock the user row before reading holdings: a concurrent sell from the
	// same user waits here instead of reading a stale sum
	var cash decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT cash FROM users WHERE user_id = $1 FOR UPDATE`, txn.UserID).Scan(&cash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var held int64
	holdingQuery := `SELECT COALESCE(SUM(shares), 0) FROM transactions WHERE user_id = $1 AND symbol = $2`
	err = tx.QueryRowContext(ctx, holdingQuery, txn.UserID, txn.Symbol).Scan(&held)
	if err != nil {
		return err
	}

	if held < txn.Shares {
		return ErrInsufficientShares
	}

	insertQuery := `INSERT INTO transactions(user_id, symbol, shares, price, op_type, name) VALUES($1, $2, $3, $4, $5, $6)`
	_, err = tx.ExecContext(ctx, insertQuery, txn.UserID, txn.Symbol, -txn.Shares, txn.Price, model.OpTypeSell, txn.Name)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET cash = cash + $1 WHERE user_id = $2`, txn.Total(), txn.UserID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Deposit credits cash only. No ledger row is written for deposits.
func (r *Postgres) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.Deposit"
	query := `UPDATE users SET cash = cash + $1 WHERE user_id = $2`

	slog.Debug("Deposit start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("Deposit failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("Deposit completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Postgres) GetHoldings(ctx context.Context, userID int64) (holdings []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetHoldings"
	query := `
		SELECT symbol, MAX(name) AS name, SUM(shares) AS net_shares
		FROM transactions
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(shares) <> 0
		ORDER BY symbol
		`

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHoldings failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHoldings completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var holding dbModel.Holding
		err = rows.StructScan(&holding)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, dbConverter.ConvertHolding(holding))
	}

	return holdings, nil
}

func (r *Postgres) GetTransactions(ctx context.Context, userID int64) (transactions []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransactions"
	query := `
		SELECT transaction_id, user_id, symbol, shares, price, op_type, name, dt_create
		FROM transactions
		WHERE user_id = $1
		ORDER BY dt_create DESC, transaction_id DESC
		`

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransactions completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var txn dbModel.Transaction
		err = rows.StructScan(&txn)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, dbConverter.ConvertTransaction(txn))
	}

	return transactions, nil
}

func (r *Postgres) GetUserIDs(ctx context.Context) (userIDs []int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUserIDs"
	query := `SELECT user_id FROM users ORDER BY user_id`

	slog.Debug("GetUserIDs start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUserIDs failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserIDs completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var userID int64
		err = rows.Scan(&userID)
		if err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}

	return userIDs, nil
}

func (r *Postgres) UpsertValuation(ctx context.Context, userID int64, date time.Time, total decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.UpsertValuation"
	query := `
		INSERT INTO account_valuations(user_id, val_date, total)
		VALUES($1, $2, $3)
		ON CONFLICT (user_id, val_date) DO UPDATE SET total = EXCLUDED.total
		`

	slog.Debug("UpsertValuation start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertValuation failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertValuation completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.db.ExecContext(ctx, query, userID, date, total)
	return err
}

func (r *Postgres) GetValuations(ctx context.Context, userID int64) (valuations []model.Valuation, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetValuations"
	query := `
		SELECT user_id, val_date, total
		FROM account_valuations
		WHERE user_id = $1
		ORDER BY val_date
		`

	slog.Debug("GetValuations start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetValuations failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetValuations completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var valuation dbModel.Valuation
		err = rows.StructScan(&valuation)
		if err != nil {
			return nil, err
		}
		valuations = append(valuations, dbConverter.ConvertValuation(valuation))
	}

	return valuations, nil
}
