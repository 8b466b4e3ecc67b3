package response

import (
	"net/http"
	"testing"
)

func TestHTTPStatusFromBusinessCode(t *testing.T) {
	cases := map[int]int{
		CodeOK:                     http.StatusOK,
		CodeBadRequest:             http.StatusBadRequest,
		CodeUnauthorized:           http.StatusUnauthorized,
		CodeValidation:             http.StatusUnprocessableEntity,
		CodeRefundNotSucceeded:     http.StatusBadRequest,
		CodePaymentNotFound:        http.StatusNotFound,
		CodeRefundSyncNotFound:     http.StatusNotFound,
		CodePaymentConflict:        http.StatusConflict,
		CodePaymentRaceConflict:    http.StatusConflict,
		CodeRefundCreateInternal:   http.StatusInternalServerError,
		CodeProviderCancelError:    http.StatusBadGateway,
		CodeProviderCancelRejected: http.StatusBadGateway,
		CodeProviderNotConfigured:  http.StatusServiceUnavailable,
		CodeRefundSyncUnsupported:  http.StatusServiceUnavailable,
		99999:                      http.StatusInternalServerError,
	}
	for code, expected := range cases {
		if got := HTTPStatus(code); got != expected {
			t.Errorf("HTTPStatus(%d)=%d expected=%d", code, got, expected)
		}
	}
}
