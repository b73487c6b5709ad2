package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"beam/internal/types"
)

var (
	ErrBadRequest     = errors.New("bad pricing request")
	ErrConfigNotFound = errors.New("fare config not found")
	ErrUnknownFeeType = errors.New("unknown platform fee type")
)

// ConfigSource looks up a fare configuration by service class and region.
type ConfigSource interface {
	FareConfig(ctx context.Context, serviceClass, region string) (FareConfig, error)
}

type Service struct {
	configs ConfigSource
}

func NewService(configs ConfigSource) *Service {
	return &Service{configs: configs}
}

// Quote resolves the fare config and estimates a fare for the trip.
func (s *Service) Quote(ctx context.Context, serviceClass, region string, distanceKm, timeMin float64) (Quote, error) {
	cfg, err := s.configs.FareConfig(ctx, serviceClass, region)
	if err != nil {
		return Quote{}, err
	}
	return Estimate(cfg, distanceKm, timeMin)
}

// Estimate prices a trip against a single config:
//
//	subtotal = max(base + perKm*distance + perMin*time, minFare)
//
// The platform fee is either a flat amount or a percentage of the subtotal.
// All amounts are rounded to two decimal places, half up. Negative distance
// or time is rejected; a negative input here is always a caller bug.
func Estimate(cfg FareConfig, distanceKm, timeMin float64) (Quote, error) {
	if distanceKm < 0 || timeMin < 0 {
		return Quote{}, ErrBadRequest
	}

	d := decimal.NewFromFloat(distanceKm)
	t := decimal.NewFromFloat(timeMin)

	subtotal := asDecimal(cfg.Base).
		Add(asDecimal(cfg.PerKm).Mul(d)).
		Add(asDecimal(cfg.PerMin).Mul(t))
	if minFare := asDecimal(cfg.MinFare); subtotal.LessThan(minFare) {
		subtotal = minFare
	}
	subtotal = subtotal.Round(2)

	var fee decimal.Decimal
	switch cfg.FeeType {
	case FeeFlat:
		fee = asDecimal(cfg.FeeFlat)
	case FeePercent:
		fee = subtotal.
			Mul(decimal.NewFromFloat(cfg.FeePercent)).
			Div(decimal.NewFromInt(100)).
			Round(2)
	default:
		return Quote{}, ErrUnknownFeeType
	}

	return Quote{
		Subtotal:    asMoney(subtotal, cfg.Currency),
		PlatformFee: asMoney(fee, cfg.Currency),
		Total:       asMoney(subtotal, cfg.Currency),
		DriverTake:  asMoney(subtotal.Sub(fee), cfg.Currency),
	}, nil
}

func asDecimal(m types.Money) decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func asMoney(d decimal.Decimal, currency string) types.Money {
	return types.Money{Amount: d.Shift(2).Round(0).IntPart(), Currency: currency}
}
