package pesapal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"duka/internal/pesapal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *pesapal.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := pesapal.NewClient(pesapal.Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Environment:    pesapal.EnvSandbox,
		IPNID:          "ipn-1",
		BaseURL:        server.URL,
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsUnknownEnvironment(t *testing.T) {
	_, err := pesapal.NewClient(pesapal.Config{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Environment:    "staging",
	})
	assert.Error(t, err)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := pesapal.NewClient(pesapal.Config{Environment: pesapal.EnvSandbox})
	assert.Error(t, err)
}

func TestAuthenticate_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body["consumer_key"])
		assert.Equal(t, "secret", body["consumer_secret"])
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})

	client := newTestClient(t, mux)
	token, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

// Pesapal answers HTTP 200 even for bad credentials; the error object in
// the body is the real signal.
func TestAuthenticate_ErrorBodyOn200(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"code":    "invalid_consumer_key_or_secret_provided",
				"message": "Invalid consumer key or secret",
			},
		})
	})

	client := newTestClient(t, mux)
	_, err := client.Authenticate(context.Background())

	var authErr *pesapal.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_consumer_key_or_secret_provided", authErr.Code)
}

func TestSubmitOrder_Success(t *testing.T) {
	var submitted map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id":  "track-1",
			"merchant_reference": submitted["id"].(string),
			"redirect_url":       "https://sandbox.pesapal.com/pay/track-1",
			"status":             "200",
		})
	})

	client := newTestClient(t, mux)
	resp, err := client.SubmitOrder(context.Background(),
		"ORDER-abc-1", 3200, "Order ORDER-abc-1", "https://shop.example.com/done",
		pesapal.Customer{Email: "jane@example.com", Phone: "0712345678", Name: "Jane Wanjiku"})

	require.NoError(t, err)
	assert.Equal(t, "track-1", resp.TrackingID)
	assert.Equal(t, "https://sandbox.pesapal.com/pay/track-1", resp.RedirectURL)

	assert.Equal(t, "KES", submitted["currency"])
	assert.Equal(t, "ipn-1", submitted["notification_id"])
	billing := submitted["billing_address"].(map[string]interface{})
	assert.Equal(t, "254712345678", billing["phone_number"])
	assert.Equal(t, "Jane", billing["first_name"])
	assert.Equal(t, "Wanjiku", billing["last_name"])
	assert.Equal(t, "KE", billing["country_code"])
}

func TestSubmitOrder_NonSuccessStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "500",
			"error":  map[string]string{"code": "duplicate_id", "message": "Duplicate order id"},
		})
	})

	client := newTestClient(t, mux)
	_, err := client.SubmitOrder(context.Background(),
		"ORDER-abc-1", 3200, "desc", "https://shop.example.com/done",
		pesapal.Customer{Email: "jane@example.com", Phone: "0712345678", Name: "Jane"})

	var submitErr *pesapal.SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Contains(t, submitErr.Message, "Duplicate")
}

func TestGetTransactionStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track-1", r.URL.Query().Get("orderTrackingId"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code":                1,
			"payment_status_description": "Completed",
			"payment_method":             "MPESA",
			"amount":                     3200.0,
		})
	})

	client := newTestClient(t, mux)
	status, err := client.GetTransactionStatus(context.Background(), "track-1")

	require.NoError(t, err)
	assert.Equal(t, pesapal.StatusCompleted, status.StatusCode)
	assert.Equal(t, "Completed", status.Description)
	assert.Equal(t, "MPESA", status.PaymentMethod)
}

func TestGetTransactionStatus_HTTPFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	client := newTestClient(t, mux)
	_, err := client.GetTransactionStatus(context.Background(), "track-1")

	var statusErr *pesapal.StatusError
	require.ErrorAs(t, err, &statusErr)
}

func TestRegisterIPN(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "GET", body["ipn_notification_type"])
		json.NewEncoder(w).Encode(map[string]string{
			"ipn_id": "ipn-99",
			"url":    body["url"],
		})
	})

	client := newTestClient(t, mux)
	reg, err := client.RegisterIPN(context.Background(), "https://shop.example.com/api/v1/payments/ipn")

	require.NoError(t, err)
	assert.Equal(t, "ipn-99", reg.ID)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+254712345678", "254712345678"},
		{"0712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"254712345678", "254712345678"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, pesapal.NormalizePhone(tc.in), "input %q", tc.in)
	}
}
