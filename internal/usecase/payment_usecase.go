package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	paymentdto "github.com/eitanfeifel/stablecoin-exchange/internal/usecase/dto/payment"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase/saga"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	currencyPattern  = regexp.MustCompile(`^[A-Z]{3,5}$`)
	paymentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// WorkflowClient is the part of the workflow engine the payment API needs.
type WorkflowClient interface {
	Start(ctx context.Context, wfType, key string, input any) (string, error)
	Signal(ctx context.Context, key, name, payload string) error
	Query(key string) (any, error)
}

type PaymentUsecase interface {
	StartPayment(ctx context.Context, input *paymentdto.StartPaymentInput) (*paymentdto.StartPaymentOutput, error)
	GetPaymentDetails(ctx context.Context, paymentID string) (*paymentdto.PaymentDetailsOutput, error)
	CancelPayment(ctx context.Context, paymentID, reason string) error
	GetPaymentStage(ctx context.Context, paymentID string) (*paymentdto.StageOutput, error)
}

type DefaultPaymentUsecase struct {
	PaymentRepo    domain.PaymentRepository
	LegRepo        domain.LegRepository
	FeeRepo        domain.FeeRepository
	Workflows      WorkflowClient
	SourceCurrency string
}

func NewDefaultPaymentUsecase(
	paymentRepo domain.PaymentRepository,
	legRepo domain.LegRepository,
	feeRepo domain.FeeRepository,
	workflows WorkflowClient,
	sourceCurrency string,
) *DefaultPaymentUsecase {
	return &DefaultPaymentUsecase{
		PaymentRepo:    paymentRepo,
		LegRepo:        legRepo,
		FeeRepo:        feeRepo,
		Workflows:      workflows,
		SourceCurrency: domain.NormalizeCurrency(sourceCurrency),
	}
}

func (uc *DefaultPaymentUsecase) StartPayment(ctx context.Context, input *paymentdto.StartPaymentInput) (*paymentdto.StartPaymentOutput, error) {
	if !input.Amount.IsPositive() {
		return nil, status.Error(codes.InvalidArgument, "amount must be positive")
	}
	if !input.Amount.Equal(domain.RoundToMinor(input.Amount, uc.SourceCurrency)) {
		return nil, status.Errorf(codes.InvalidArgument, "amount has more precision than %s allows", uc.SourceCurrency)
	}

	currency := domain.NormalizeCurrency(input.DestinationCurrency)
	if !currencyPattern.MatchString(currency) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid destination currency %q", input.DestinationCurrency)
	}

	paymentID := input.PaymentID
	if paymentID == "" {
		paymentID = uuid.NewString()
	} else if !paymentIDPattern.MatchString(paymentID) {
		return nil, status.Error(codes.InvalidArgument, "payment_id may only contain letters, digits, '-' and '_'")
	}

	key := saga.WorkflowKey(paymentID)
	runID, err := uc.Workflows.Start(ctx, saga.WorkflowType, key, saga.Input{
		PaymentID:           paymentID,
		Amount:              input.Amount,
		DestinationCurrency: currency,
	})
	if errors.Is(err, domain.ErrWorkflowAlreadyStarted) {
		return nil, status.Errorf(codes.AlreadyExists, "payment %s already exists", paymentID)
	}
	if err != nil {
		slog.Error("failed to start payment saga", "payment_id", paymentID, "error", err)
		return nil, status.Error(codes.Internal, "failed to start payment")
	}

	return &paymentdto.StartPaymentOutput{
		PaymentID:   paymentID,
		WorkflowKey: key,
		RunID:       runID,
	}, nil
}

func (uc *DefaultPaymentUsecase) GetPaymentDetails(ctx context.Context, paymentID string) (*paymentdto.PaymentDetailsOutput, error) {
	payment, err := uc.PaymentRepo.GetPaymentByID(ctx, paymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, status.Errorf(codes.NotFound, "payment %s not found", paymentID)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("load payment: %v", err))
	}

	legs, err := uc.LegRepo.GetLegsByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("load legs: %v", err))
	}
	fees, err := uc.FeeRepo.GetFeesByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("load fees: %v", err))
	}

	return toDetailsOutput(&domain.PaymentDetails{Payment: payment, Legs: legs, Fees: fees}), nil
}

func (uc *DefaultPaymentUsecase) CancelPayment(ctx context.Context, paymentID, reason string) error {
	err := uc.Workflows.Signal(ctx, saga.WorkflowKey(paymentID), saga.CancelSignal, reason)
	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return status.Errorf(codes.NotFound, "no running payment %s", paymentID)
	}
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("cancel payment: %v", err))
	}

	slog.Info("cancellation requested", "payment_id", paymentID, "reason", reason)
	return nil
}

func (uc *DefaultPaymentUsecase) GetPaymentStage(ctx context.Context, paymentID string) (*paymentdto.StageOutput, error) {
	result, err := uc.Workflows.Query(saga.WorkflowKey(paymentID))
	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return nil, status.Errorf(codes.NotFound, "no running payment %s", paymentID)
	}
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	snap, ok := result.(saga.Snapshot)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected stage type %T", result)
	}

	return &paymentdto.StageOutput{
		PaymentID:       snap.PaymentID,
		Stage:           string(snap.Stage),
		CancelRequested: snap.CancelRequested,
		CancelReason:    snap.CancelReason,
		Outcome:         snap.Outcome,
	}, nil
}

func toDetailsOutput(details *domain.PaymentDetails) *paymentdto.PaymentDetailsOutput {
	p := details.Payment
	out := &paymentdto.PaymentDetailsOutput{
		Payment: paymentdto.PaymentOutput{
			ID:                  p.ID,
			Amount:              p.Amount,
			SourceCurrency:      p.SourceCurrency,
			DestinationCurrency: p.DestinationCurrency,
			Status:              string(p.Status),
			CreatedAt:           p.CreatedAt,
			UpdatedAt:           p.UpdatedAt,
		},
		Legs: make([]paymentdto.LegOutput, 0, len(details.Legs)),
		Fees: make([]paymentdto.FeeOutput, 0, len(details.Fees)),
	}

	for _, leg := range details.Legs {
		out.Legs = append(out.Legs, paymentdto.LegOutput{
			ID:              leg.ID,
			Type:            string(leg.Type),
			SourceAmount:    leg.SourceAmount,
			ConvertedAmount: leg.ConvertedAmount,
			Rate:            leg.Rate,
			SourceCurrency:  leg.SourceCurrency,
			TargetCurrency:  leg.TargetCurrency,
			Status:          string(leg.Status),
			Reason:          leg.Reason,
		})
	}
	for _, fee := range details.Fees {
		out.Fees = append(out.Fees, paymentdto.FeeOutput{
			ID:       fee.ID,
			Leg:      string(fee.Leg),
			Amount:   fee.Amount,
			Currency: fee.Currency,
		})
	}

	return out
}
