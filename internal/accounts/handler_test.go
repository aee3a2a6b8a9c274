package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"instafund/internal/challenge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("record: %w", challenge.ErrAccountBreached), http.StatusConflict},
		{ErrAlreadyActive, http.StatusConflict},
		{ErrKYCRequired, http.StatusForbidden},
		{challenge.ErrInvalidTradeInput, http.StatusBadRequest},
		{challenge.ErrProfitTargetNotMet, http.StatusBadRequest},
		{challenge.ErrBelowMinimumWithdrawal, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestHandler_RecordTradeAndStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Activate(context.Background(), "t1", "pay_1")
	require.NoError(t, err)
	h := NewHandler(svc)

	body := `{"symbol":"NIFTY","side":"sell","quantity":"2","entry_price":"100","exit_price":"110","broker":"zerodha"}`
	rec := httptest.NewRecorder()
	h.RecordTrade(rec, httptest.NewRequest(http.MethodPost, "/v1/account/trades", strings.NewReader(body)), "t1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		Trade struct {
			PnL string `json:"pnl"`
		} `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "20", res.Trade.PnL)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard/stats", nil), "t1")
	require.Equal(t, http.StatusOK, rec.Code)
	var p challenge.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 1, p.Trades)
	assert.Equal(t, 5, p.MinTrades)
}

func TestHandler_RecordTradeRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Activate(context.Background(), "t1", "pay_1")
	require.NoError(t, err)
	h := NewHandler(svc)

	body := `{"symbol":"NIFTY","side":"hold","quantity":"1","entry_price":"100","exit_price":"110"}`
	rec := httptest.NewRecorder()
	h.RecordTrade(rec, httptest.NewRequest(http.MethodPost, "/v1/account/trades", strings.NewReader(body)), "t1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := httptest.NewRecorder()
	NewHandler(svc).Get(rec, httptest.NewRequest(http.MethodGet, "/v1/account", nil), "ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
