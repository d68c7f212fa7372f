package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Base URLs per environment, selected by Config.Environment.
const (
	sandboxBaseURL = "https://cybqa.pesapal.com/pesapalv3"
	liveBaseURL    = "https://pay.pesapal.com/v3"
)

// Environment values accepted by NewClient.
const (
	EnvSandbox = "sandbox"
	EnvLive    = "live"
)

// Transaction status codes returned by GetTransactionStatus.
const (
	StatusInvalid   = 0
	StatusCompleted = 1
	StatusFailed    = 2
	StatusReversed  = 3
)

// submitOKStatus is the status string Pesapal returns for an accepted
// order submission. The gateway returns HTTP 200 even for errors, so the
// body status is the authoritative signal.
const submitOKStatus = "200"

// Config holds the gateway credentials and environment selection.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	Environment    string // EnvSandbox or EnvLive, strictly
	IPNID          string // notification id obtained from RegisterIPN
	Timeout        time.Duration
	BaseURL        string // overrides the environment base URL when set
}

// Customer is the billing information attached to an order submission.
type Customer struct {
	Email string
	Phone string
	Name  string
}

// SubmitResponse is the outcome of a successful order submission.
type SubmitResponse struct {
	TrackingID  string
	RedirectURL string
	Status      string
}

// TransactionStatus is the authoritative payment state for a tracking id.
type TransactionStatus struct {
	StatusCode    int
	Description   string
	PaymentMethod string
	Amount        float64
}

// IPNRegistration is the result of registering a notification URL.
type IPNRegistration struct {
	ID  string
	URL string
}

// Client talks to the Pesapal v3 API. The bearer token is cached per client
// instance and fetched lazily; clients are safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a gateway client. The environment must be exactly
// "sandbox" or "live".
func NewClient(cfg Config) (*Client, error) {
	var base string
	switch cfg.Environment {
	case EnvSandbox:
		base = sandboxBaseURL
	case EnvLive:
		base = liveBaseURL
	default:
		return nil, fmt.Errorf("invalid pesapal environment %q (want %q or %q)", cfg.Environment, EnvSandbox, EnvLive)
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, fmt.Errorf("pesapal consumer key and secret are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// apiError is the error object Pesapal embeds in otherwise-200 responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Authenticate exchanges the consumer credentials for a bearer token and
// caches it on the client. Callers normally never need this directly; every
// operation authenticates lazily.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	payload := map[string]string{
		"consumer_key":    c.cfg.ConsumerKey,
		"consumer_secret": c.cfg.ConsumerSecret,
	}

	var resp struct {
		Token string    `json:"token"`
		Error *apiError `json:"error"`
	}
	if err := c.post(ctx, "/api/Auth/RequestToken", "", payload, &resp); err != nil {
		return "", &AuthError{Err: err}
	}
	if resp.Error != nil && resp.Error.Code != "" {
		return "", &AuthError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if resp.Token == "" {
		return "", &AuthError{Message: "no token in response"}
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return resp.Token, nil
}

// bearer returns the cached token, authenticating first if none is held.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.Authenticate(ctx)
}

// SubmitOrder submits a payment request for the given merchant reference.
// The customer's phone number is normalized to the 254 international format
// before submission.
func (c *Client) SubmitOrder(ctx context.Context, merchantRef string, amount float64, description, callbackURL string, customer Customer) (*SubmitResponse, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	firstName, lastName := splitName(customer.Name)
	payload := map[string]interface{}{
		"id":              merchantRef,
		"currency":        "KES",
		"amount":          amount,
		"description":     description,
		"callback_url":    callbackURL,
		"notification_id": c.cfg.IPNID,
		"billing_address": map[string]string{
			"email_address": customer.Email,
			"phone_number":  NormalizePhone(customer.Phone),
			"country_code":  "KE",
			"first_name":    firstName,
			"last_name":     lastName,
		},
	}

	var resp struct {
		OrderTrackingID   string    `json:"order_tracking_id"`
		MerchantReference string    `json:"merchant_reference"`
		RedirectURL       string    `json:"redirect_url"`
		Status            string    `json:"status"`
		Error             *apiError `json:"error"`
	}
	if err := c.post(ctx, "/api/Transactions/SubmitOrderRequest", token, payload, &resp); err != nil {
		return nil, &SubmitError{Err: err}
	}
	if resp.Error != nil && resp.Error.Code != "" {
		return nil, &SubmitError{Status: resp.Status, Message: resp.Error.Message}
	}
	if resp.Status != submitOKStatus || resp.OrderTrackingID == "" || resp.RedirectURL == "" {
		return nil, &SubmitError{Status: resp.Status, Message: "malformed submission response"}
	}

	return &SubmitResponse{
		TrackingID:  resp.OrderTrackingID,
		RedirectURL: resp.RedirectURL,
		Status:      resp.Status,
	}, nil
}

// GetTransactionStatus fetches the authoritative state of a submitted
// payment by its tracking id.
func (c *Client) GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/Transactions/GetTransactionStatus?orderTrackingId=%s",
		c.baseURL, url.QueryEscape(trackingID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &StatusError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &StatusError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, &StatusError{Message: fmt.Sprintf("unexpected status %d: %s", res.StatusCode, body)}
	}

	var resp struct {
		StatusCode               int       `json:"status_code"`
		PaymentStatusDescription string    `json:"payment_status_description"`
		PaymentMethod            string    `json:"payment_method"`
		Amount                   float64   `json:"amount"`
		Error                    *apiError `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, &StatusError{Err: fmt.Errorf("failed to decode status response: %w", err)}
	}
	if resp.Error != nil && resp.Error.Code != "" {
		return nil, &StatusError{Message: resp.Error.Message}
	}

	return &TransactionStatus{
		StatusCode:    resp.StatusCode,
		Description:   resp.PaymentStatusDescription,
		PaymentMethod: resp.PaymentMethod,
		Amount:        resp.Amount,
	}, nil
}

// RegisterIPN registers the notification URL with the gateway. Registration
// is idempotent on the Pesapal side; this is a deployment-time operation,
// not part of the request flow.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (*IPNRegistration, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"url":                   ipnURL,
		"ipn_notification_type": "GET",
	}

	var resp struct {
		IPNID string    `json:"ipn_id"`
		URL   string    `json:"url"`
		Error *apiError `json:"error"`
	}
	if err := c.post(ctx, "/api/URLSetup/RegisterIPN", token, payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to register IPN URL: %w", err)
	}
	if resp.Error != nil && resp.Error.Code != "" {
		return nil, fmt.Errorf("failed to register IPN URL: %s (%s)", resp.Error.Message, resp.Error.Code)
	}
	if resp.IPNID == "" {
		return nil, fmt.Errorf("failed to register IPN URL: no ipn_id in response")
	}

	return &IPNRegistration{ID: resp.IPNID, URL: resp.URL}, nil
}

// post sends a JSON POST and decodes the JSON response into out. A non-2xx
// HTTP status is an error; body-level error objects are left to callers.
func (c *Client) post(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("unexpected status %d: %s", res.StatusCode, b)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// NormalizePhone converts a customer phone number to the canonical
// international format the gateway expects: no leading plus, a leading zero
// replaced by 254, and bare local numbers prefixed with 254.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "0") {
		return "254" + phone[1:]
	}
	if !strings.HasPrefix(phone, "254") {
		return "254" + phone
	}
	return phone
}

// splitName splits a full customer name into the first/last pair the
// billing address requires, with placeholders for missing parts.
func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch {
	case len(parts) == 0:
		return "Customer", "User"
	case len(parts) == 1:
		return parts[0], "User"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
