package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymebot/payrelay/internal/api"
	"github.com/paymebot/payrelay/internal/domain"
	"github.com/paymebot/payrelay/internal/engine"
	"github.com/paymebot/payrelay/internal/engine/enginetest"
	"github.com/paymebot/payrelay/internal/relay"
)

const approverID int64 = 999

func setup(t *testing.T) (*httptest.Server, *enginetest.Ledger, *enginetest.Sender) {
	t.Helper()
	ledger := enginetest.NewLedger()
	sender := &enginetest.Sender{}
	eng := engine.New(ledger, sender, approverID, nil)
	router := relay.New(eng, sender, approverID, nil)
	ts := httptest.NewServer(api.NewHandler(eng, router, nil).Routes())
	t.Cleanup(ts.Close)
	return ts, ledger, sender
}

func TestHealth(t *testing.T) {
	ts, _, _ := setup(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDashboard(t *testing.T) {
	ts, ledger, _ := setup(t)

	ledger.AddUser(domain.User{
		ID: 1, Balance: decimal.NewFromInt(300),
		BankName: "Acme", AccountNumber: "12345678",
	})
	ledger.AddUser(domain.User{ID: 2, Balance: decimal.NewFromInt(200)})

	resp, err := http.Get(ts.URL + "/dashboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		TotalUsers           int64           `json:"total_users"`
		UsersWithBankDetails int64           `json:"users_with_bank_details"`
		TotalBalance         decimal.Decimal `json:"total_balance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(2), got.TotalUsers)
	assert.Equal(t, int64(1), got.UsersWithBankDetails)
	assert.True(t, decimal.NewFromInt(500).Equal(got.TotalBalance))
}

func TestEventsRejectsMalformedPayload(t *testing.T) {
	ts, _, _ := setup(t)

	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventsAcceptsAndDispatches(t *testing.T) {
	ts, ledger, sender := setup(t)
	ledger.AddUser(domain.User{ID: 42, Handle: "alice", Balance: decimal.NewFromInt(100)})

	resp, err := http.Post(ts.URL+"/events", "application/json",
		strings.NewReader(`{"sender_id":42,"handle":"alice","text":"/balance"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Dispatch is asynchronous; poll briefly for the reply.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.ContainsFor(42, "current balance") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("event was not dispatched to the router")
}
