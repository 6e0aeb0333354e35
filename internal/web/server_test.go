package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/vendo/internal/dispense"
	"github.com/sweeney/vendo/internal/journal"
	"github.com/sweeney/vendo/internal/status"
)

type fakeOperator struct {
	mu       sync.Mutex
	credit   decimal.Decimal
	shutdown []string
	results  map[string]error
	ctxErr   error
}

func (o *fakeOperator) AddCredit(amount decimal.Decimal) {
	o.mu.Lock()
	o.credit = o.credit.Add(amount)
	o.mu.Unlock()
}

func (o *fakeOperator) Dispense(ctx context.Context, channel string) (dispense.Attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctxErr = ctx.Err()
	err, ok := o.results[channel]
	if !ok {
		return dispense.Attempt{Channel: channel, Outcome: dispense.OutcomeAborted}, fmt.Errorf("%s: %w", channel, dispense.ErrUnknownChannel)
	}
	a := dispense.Attempt{ID: "attempt-1", Channel: channel, Outcome: dispense.OutcomeConfirmed}
	if err != nil {
		a.Outcome = dispense.OutcomeAborted
	}
	return a, err
}

func (o *fakeOperator) RequestShutdown(reason string) {
	o.mu.Lock()
	o.shutdown = append(o.shutdown, reason)
	o.mu.Unlock()
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeOperator) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{Broker: "tcp://192.168.1.200:1883", HTTPAddr: ":80"})
	op := &fakeOperator{
		credit: decimal.Zero,
		results: map[string]error{
			"a": nil,
			"b": dispense.ErrInsufficientCredit,
			"c": dispense.ErrBusy,
			"d": dispense.ErrTimeout,
		},
	}
	srv := New(":0", tr, op, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, op
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetCredit(decimal.NewFromInt(15))
	tr.SetChannel(status.Channel{ID: "a", Name: "Wings", Cost: decimal.NewFromInt(10), Stock: 4, State: "IDLE"})
	tr.SetRemoteConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	assert.Equal(t, "15", sj.Status.Credit)
	assert.True(t, sj.Status.Remote.Connected)
	require.Len(t, sj.Status.Channels, 1)
	assert.Equal(t, 4, sj.Status.Channels[0].Stock)
}

func TestIndexPage(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetChannel(status.Channel{ID: "a", Name: "Wings", Cost: decimal.NewFromInt(10), Stock: 0, State: "IDLE"})
	tr.SetDisplay("Credit: 5", "Insert coins...")

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		html := string(body)
		assert.Contains(t, html, "Vending Machine")
		assert.Contains(t, html, "Wings")
		assert.Contains(t, html, "Insert coins...")
		assert.Contains(t, html, "tcp://192.168.1.200:1883")
	}

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreditEndpoint(t *testing.T) {
	ts, _, op := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/credit", "application/json", strings.NewReader(`{"amount":"12.5"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, op.credit.Equal(decimal.RequireFromString("12.5")))

	for _, body := range []string{`{"amount":"-1"}`, `{"amount":0}`, `not json`} {
		resp, err := http.Post(ts.URL+"/api/credit", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestDispenseEndpoint(t *testing.T) {
	ts, _, op := newTestServer(t)

	tests := []struct {
		channel string
		code    int
		outcome string
	}{
		{"a", http.StatusOK, "CONFIRMED"},
		{"b", http.StatusPaymentRequired, "ABORTED"},
		{"c", http.StatusConflict, "ABORTED"},
		{"d", http.StatusGatewayTimeout, "ABORTED"},
		{"zzz", http.StatusNotFound, "ABORTED"},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/dispense/"+tt.channel, "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.code, resp.StatusCode)
			var ar AttemptResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&ar))
			assert.Equal(t, tt.channel, ar.Channel)
			assert.Equal(t, tt.outcome, ar.Outcome)
			if tt.code != http.StatusOK {
				assert.NotEmpty(t, ar.Error)
			}
		})
	}
	assert.NoError(t, op.ctxErr, "dispense context is detached from the request")
}

func TestShutdownEndpoint(t *testing.T) {
	ts, _, op := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/shutdown", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"http"}, op.shutdown)

	resp, err = http.Get(ts.URL + "/api/shutdown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(fmt.Errorf("x: %w", dispense.ErrChannelBlocked)))
	assert.Equal(t, http.StatusConflict, statusFor(dispense.ErrOutOfStock))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(dispense.ErrCancelled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(dispense.ErrHardware))
}

type fakeSales struct {
	mu      sync.Mutex
	records []journal.SaleRecord
	limits  []int
	err     error
}

func (f *fakeSales) RecentSales(limit int) ([]journal.SaleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return f.records, f.err
}

func TestSalesEndpointWithoutJournal(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sales")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSalesEndpoint(t *testing.T) {
	end := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sales := &fakeSales{records: []journal.SaleRecord{
		{AttemptID: "x1", Channel: "wings", Cost: decimal.NewFromInt(10), Outcome: "CONFIRMED", End: end},
	}}
	srv := New(":0", status.NewTracker(end, status.Config{}), &fakeOperator{}, zap.NewNop()).WithSales(sales)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/sales?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []SaleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].AttemptID)
	assert.Equal(t, "10", got[0].Cost)
	assert.True(t, end.Equal(got[0].End))

	bad, err := http.Get(ts.URL + "/api/sales?limit=x")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	sales.mu.Lock()
	sales.err = fmt.Errorf("disk gone")
	sales.mu.Unlock()
	failed, err := http.Get(ts.URL + "/api/sales")
	require.NoError(t, err)
	failed.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)

	sales.mu.Lock()
	defer sales.mu.Unlock()
	assert.Equal(t, []int{100, 20}, sales.limits, "limit is capped and defaulted")
}
