package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/eitanfeifel/stablecoin-exchange/internal/delivery/http/dto/payment/request"
	"github.com/eitanfeifel/stablecoin-exchange/internal/delivery/http/dto/payment/response"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase"
	paymentdto "github.com/eitanfeifel/stablecoin-exchange/internal/usecase/dto/payment"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 16

type HTTPPaymentHandler struct {
	paymentUsecase usecase.PaymentUsecase
	rateUsecase    usecase.ExchangeRateUsecase
}

func NewHTTPPaymentHandler(paymentUsecase usecase.PaymentUsecase, rateUsecase usecase.ExchangeRateUsecase) *HTTPPaymentHandler {
	return &HTTPPaymentHandler{
		paymentUsecase: paymentUsecase,
		rateUsecase:    rateUsecase,
	}
}

func (h *HTTPPaymentHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req request.StartPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.paymentUsecase.StartPayment(r.Context(), &paymentdto.StartPaymentInput{
		PaymentID:           req.PaymentID,
		Amount:              req.Amount,
		DestinationCurrency: req.DestinationCurrency,
	})
	if err != nil {
		writeStatusError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, response.StartPaymentResponse{
		PaymentID:   out.PaymentID,
		WorkflowKey: out.WorkflowKey,
		RunID:       out.RunID,
	})
}

func (h *HTTPPaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	details, err := h.paymentUsecase.GetPaymentDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStatusError(w, err)
		return
	}

	resp := response.PaymentDetailsResponse{
		Payment: response.PaymentResponse{
			ID:                  details.Payment.ID,
			Amount:              details.Payment.Amount.String(),
			SourceCurrency:      details.Payment.SourceCurrency,
			DestinationCurrency: details.Payment.DestinationCurrency,
			Status:              details.Payment.Status,
			CreatedAt:           details.Payment.CreatedAt,
			UpdatedAt:           details.Payment.UpdatedAt,
		},
		Legs: make([]response.LegResponse, 0, len(details.Legs)),
		Fees: make([]response.FeeResponse, 0, len(details.Fees)),
	}
	for _, leg := range details.Legs {
		resp.Legs = append(resp.Legs, response.LegResponse{
			ID:              leg.ID,
			Type:            leg.Type,
			SourceAmount:    leg.SourceAmount.String(),
			ConvertedAmount: leg.ConvertedAmount.String(),
			Rate:            leg.Rate.String(),
			SourceCurrency:  leg.SourceCurrency,
			TargetCurrency:  leg.TargetCurrency,
			Status:          leg.Status,
			Reason:          leg.Reason,
		})
	}
	for _, fee := range details.Fees {
		resp.Fees = append(resp.Fees, response.FeeResponse{
			ID:       fee.ID,
			Leg:      fee.Leg,
			Amount:   fee.Amount.String(),
			Currency: fee.Currency,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPPaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	var req request.CancelPaymentRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.paymentUsecase.CancelPayment(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeStatusError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPPaymentHandler) GetPaymentStage(w http.ResponseWriter, r *http.Request) {
	stage, err := h.paymentUsecase.GetPaymentStage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStatusError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response.StageResponse{
		PaymentID:       stage.PaymentID,
		Stage:           stage.Stage,
		CancelRequested: stage.CancelRequested,
		CancelReason:    stage.CancelReason,
		Outcome:         stage.Outcome,
	})
}

func (h *HTTPPaymentHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.rateUsecase.GetRate(r.Context(), chi.URLParam(r, "quote"))
	if err != nil {
		writeStatusError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response.RateResponse{
		Base:          rate.Base,
		Quote:         rate.Quote,
		Rate:          rate.Rate.String(),
		EffectiveDate: rate.EffectiveDate.Format("2006-01-02"),
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, response.ErrorResponse{Error: message})
}

// writeStatusError maps a grpc status error from the usecases to HTTP.
func writeStatusError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.InvalidArgument:
		code = http.StatusBadRequest
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.AlreadyExists:
		code = http.StatusConflict
	case codes.FailedPrecondition:
		code = http.StatusPreconditionFailed
	case codes.Unavailable:
		code = http.StatusServiceUnavailable
	default:
		slog.Error("request failed", "error", err)
	}
	writeError(w, code, st.Message())
}
