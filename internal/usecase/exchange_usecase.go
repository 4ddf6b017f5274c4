package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const rateDateLayout = "2006-01-02"

type ExchangeRateUsecase interface {
	GetRate(ctx context.Context, quote string) (*domain.ExchangeRate, error)
	ImportCSV(ctx context.Context, r io.Reader) (int, error)
	ImportFile(ctx context.Context, path string) (int, error)
}

type DefaultExchangeRateUsecase struct {
	RateRepo     domain.ExchangeRateRepository
	BaseCurrency string
}

func NewDefaultExchangeRateUsecase(rateRepo domain.ExchangeRateRepository, baseCurrency string) *DefaultExchangeRateUsecase {
	return &DefaultExchangeRateUsecase{
		RateRepo:     rateRepo,
		BaseCurrency: domain.NormalizeCurrency(baseCurrency),
	}
}

func (uc *DefaultExchangeRateUsecase) GetRate(ctx context.Context, quote string) (*domain.ExchangeRate, error) {
	rate, err := uc.RateRepo.GetLatestRate(ctx, uc.BaseCurrency, quote)
	if errors.Is(err, domain.ErrRateNotFound) {
		return nil, status.Errorf(codes.NotFound, "no rate for %s/%s", uc.BaseCurrency, domain.NormalizeCurrency(quote))
	}
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("lookup rate: %v", err))
	}
	return rate, nil
}

// ImportCSV upserts rows of "quote,rate,effective_date" quoted against the
// base currency. A header row is skipped. The whole file is rejected on the
// first malformed row.
func (uc *DefaultExchangeRateUsecase) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var rates []*domain.ExchangeRate
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read rates: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "quote") {
			continue
		}

		rate, err := uc.parseRecord(record)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		rates = append(rates, rate)
	}

	if err := uc.RateRepo.UpsertRates(ctx, rates); err != nil {
		return 0, fmt.Errorf("upsert rates: %w", err)
	}
	return len(rates), nil
}

func (uc *DefaultExchangeRateUsecase) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := uc.ImportCSV(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	slog.Info("exchange rates imported", "path", path, "rows", n)
	return n, nil
}

func (uc *DefaultExchangeRateUsecase) parseRecord(record []string) (*domain.ExchangeRate, error) {
	quote := domain.NormalizeCurrency(record[0])
	if quote == "" {
		return nil, errors.New("empty quote currency")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return nil, fmt.Errorf("rate %q: %w", record[1], err)
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("rate %s must be positive", rate)
	}
	effective, err := time.Parse(rateDateLayout, strings.TrimSpace(record[2]))
	if err != nil {
		return nil, fmt.Errorf("effective_date %q: %w", record[2], err)
	}

	return &domain.ExchangeRate{
		Base:          uc.BaseCurrency,
		Quote:         quote,
		Rate:          rate,
		EffectiveDate: effective,
	}, nil
}
