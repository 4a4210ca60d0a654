package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("error invalid username or password")
	ErrUsernameTaken      = errors.New("error username already taken")
	ErrUnknownSymbol      = errors.New("error unknown symbol")
	ErrInsufficientFunds  = errors.New("error insufficient funds")
	ErrInsufficientShares = errors.New("error insufficient shares")
	ErrInvalidAmount      = errors.New("error invalid amount")
)
