package dbConverter

import (
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/model/dbModel"
)

func ConvertUser(dbUser dbModel.User) model.User {
	return model.User{
		UserID:       dbUser.UserID,
		Username:     dbUser.Username,
		PasswordHash: dbUser.PasswordHash,
		Cash:         dbUser.Cash,
	}
}

func ConvertTransaction(dbTxn dbModel.Transaction) model.Transaction {
	return model.Transaction{
		TransactionID: dbTxn.TransactionID,
		UserID:        dbTxn.UserID,
		Symbol:        dbTxn.Symbol,
		Shares:        dbTxn.Shares,
		Price:         dbTxn.Price,
		OpType:        dbTxn.OpType,
		Name:          dbTxn.Name,
		CreatedAt:     dbTxn.CreatedAt,
	}
}

func ConvertHolding(dbHolding dbModel.Holding) model.Holding {
	return model.Holding{
		Symbol:    dbHolding.Symbol,
		Name:      dbHolding.Name,
		NetShares: dbHolding.NetShares,
	}
}

func ConvertValuation(dbValuation dbModel.Valuation) model.Valuation {
	return model.Valuation{
		Date:  dbValuation.Date,
		Total: dbValuation.Total,
	}
}
