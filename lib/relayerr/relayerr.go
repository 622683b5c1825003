// Package relayerr holds the error taxonomy shared by every relay layer.
// Callers match with errors.Is; lower layers wrap one of these sentinels.
package relayerr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownChain        = errors.New("unknown chain")
	ErrRpcUnavailable      = errors.New("rpc unavailable")
	ErrBroadcastRejected   = errors.New("broadcast rejected")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// Kind returns a short label for err, used for metrics and log attributes.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnknownChain):
		return "unknown_chain"
	case errors.Is(err, ErrBroadcastRejected):
		return "broadcast_rejected"
	case errors.Is(err, ErrRpcUnavailable):
		return "rpc_unavailable"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrTransactionReverted):
		return "reverted"
	default:
		return "internal"
	}
}

// HTTPStatus maps err onto a non-2xx status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownChain):
		return http.StatusBadRequest
	case errors.Is(err, ErrBroadcastRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRpcUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
