package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"casa-relay/lib/relayerr"
	"casa-relay/modules/chains"
	"casa-relay/modules/fees"
	"casa-relay/modules/relay"

	"github.com/go-playground/validator/v10"
)

var hexDataRegex = regexp.MustCompile(`^(0[xX])?([0-9a-fA-F]{2})*$`)

var requestValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// even-length hex with optional 0x; "0x" alone is empty calldata
	err := v.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
		return hexDataRegex.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
	return v
}

type callQuery struct {
	ChainId string `validate:"required,number"`
	For     string `validate:"required,eth_addr"`
	To      string `validate:"required,eth_addr"`
	Data    string `validate:"required,hexdata"`
	Value   string `validate:"omitempty,number"`
}

func callHandler(pipeline *relay.Pipeline, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := callQuery{
			ChainId: q.Get("chain_id"),
			For:     q.Get("for_"),
			To:      q.Get("to"),
			Data:    q.Get("data"),
			Value:   q.Get("value"),
		}

		log.Info("call",
			"chain_id", query.ChainId,
			"for", query.For,
			"to", query.To,
			"value", query.Value,
			"data_len", len(query.Data),
		)

		if err := requestValidator.Struct(&query); err != nil {
			writeResponse(w, http.StatusBadRequest, invalidQueryMessage(err))
			return
		}

		req, err := relay.ParseRequest(query.ChainId, query.For, query.To, query.Data, query.Value)
		if err != nil {
			writeError(w, log, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), requestTimeout)
		defer cancel()

		hash, err := pipeline.Relay(ctx, req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeResponse(w, http.StatusOK, hash.Hex())
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, "ok")
	}
}

type statusBody struct {
	Operator string                `json:"operator"`
	Chains   []chains.ChainID      `json:"chains"`
	Relay    relay.MetricsSnapshot `json:"relay"`
	Fees     *fees.MetricsSnapshot `json:"fees,omitempty"`
}

func statusHandler(pipeline *relay.Pipeline, feeMetrics *fees.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := statusBody{
			Operator: pipeline.Operator().Hex(),
			Chains:   pipeline.Registry().IDs(),
			Relay:    pipeline.Metrics().Snapshot(),
		}
		if feeMetrics != nil {
			snap := feeMetrics.Snapshot()
			body.Fees = &snap
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Default().Error("failed to write status", "err", err)
		}
	}
}

func invalidQueryMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid query"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", queryParam(fe.Field()), fe.Tag()))
	}
	return "invalid query: " + strings.Join(fields, ", ")
}

func queryParam(field string) string {
	switch field {
	case "ChainId":
		return "chain_id"
	case "For":
		return "for_"
	default:
		return strings.ToLower(field)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := relayerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("relay failed", "kind", relayerr.Kind(err), "err", err)
	} else {
		log.Warn("relay refused", "kind", relayerr.Kind(err), "err", err)
	}
	writeResponse(w, status, relayerr.Kind(err)+": "+err.Error())
}

func writeResponse(w http.ResponseWriter, statusCode int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)

	if len(msg) == 0 {
		return
	}

	if _, err := w.Write([]byte(msg)); err != nil {
		slog.Default().Error("failed to write response", "err", err)
	}
}
