package quoteApi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mkarpushin/papertrade/config"
	"github.com/mkarpushin/papertrade/internal/externalApi"
	"github.com/mkarpushin/papertrade/internal/model"
	"github.com/mkarpushin/papertrade/internal/model/quoteModel"
	"github.com/mkarpushin/papertrade/utils"
	"github.com/shopspring/decimal"
)

// QuoteApi fetches live quotes from the external provider. Prices are
// never cached: every lookup is a fresh request.
type QuoteApi struct {
	client *resty.Client
	apiKey string
}

func New(cfg *config.Config) *QuoteApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.QuoteApi.Url)
	return &QuoteApi{client: client, apiKey: cfg.API.QuoteApi.Key}
}

func (a *QuoteApi) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	url := fmt.Sprintf("/stock/%s/quote", strings.ToUpper(symbol))

	slog.Debug("start QuoteApi.GetQuote request", slog.String("rqID", rqID), slog.String("symbol", symbol))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("token", a.apiKey).
		Get(url)

	if err != nil {
		slog.Error("error while dialing quote provider", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if resp.StatusCode() == http.StatusNotFound {
		slog.Debug("symbol not found in quote provider", slog.String("rqID", rqID), slog.String("symbol", symbol))
		return model.Quote{}, externalApi.ErrNotFound
	}

	if resp.StatusCode() != http.StatusOK {
		slog.Error("unexpected status from quote provider", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return model.Quote{}, fmt.Errorf("quote provider returned status %d", resp.StatusCode())
	}

	rawQuote := quoteModel.RawQuote{}
	err = json.Unmarshal(resp.Body(), &rawQuote)
	if err != nil {
		slog.Error("can't unmarshall response into quoteModel.RawQuote", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.Quote{}, err
	}

	if rawQuote.Symbol == "" {
		return model.Quote{}, externalApi.ErrNotFound
	}

	slog.Debug("QuoteApi.GetQuote request complete", slog.String("rqID", rqID))

	return model.Quote{
		Symbol: rawQuote.Symbol,
		Name:   rawQuote.CompanyName,
		Price:  decimal.NewFromFloat(rawQuote.LatestPrice),
	}, nil
}
