package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dhanwira/lokapasar-backend/pkg/config"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"
)

var (
	errCredentialsRequired = errors.New("paypal client id and secret are required")
	errInvalidPayPalEnv    = fmt.Errorf("paypal environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired      = errors.New("paypal logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv: "https://api-m.sandbox.paypal.com",
	liveEnv:    "https://api-m.paypal.com",
}

// Client exposes the PayPal Orders API with centralized auth, logging, and
// error mapping. Amounts come in as local currency minor units and leave as
// USD strings; the conversion rate is fixed at construction.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	environment  string
	baseURL      string
	returnURL    string
	cancelURL    string
	converter    *Converter
	logger       *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient initializes the PayPal wrapper and validates the credentials. No
// network call is made until the first operation needs a token.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}

	converter, err := NewConverter(cfg.LocalPerUSD)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		clientID:     clientID,
		clientSecret: clientSecret,
		environment:  env,
		baseURL:      baseURLs[env],
		returnURL:    strings.TrimSpace(cfg.ReturnURL),
		cancelURL:    strings.TrimSpace(cfg.CancelURL),
		converter:    converter,
		logger:       logg,
	}

	logg.Info(ctx, "paypal client initialized")
	return c, nil
}

// Environment reports the normalized PayPal environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateOrder opens a payment intent for the given amount. CustomID travels
// through PayPal untouched and comes back on capture and webhook payloads, so
// callers use it to carry the settlement subject reference.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Intent, error) {
	if params.AmountLocal <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	usd := c.converter.LocalToUSD(params.AmountLocal)
	c.log(ctx, "request", "create_order", map[string]any{
		"custom_id":    params.CustomID,
		"amount_local": params.AmountLocal,
		"amount_usd":   usd,
	})

	req := orderCreateRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: params.ReferenceID,
			CustomID:    params.CustomID,
			Amount:      amount{CurrencyCode: "USD", Value: usd},
		}},
		PaymentSource: paymentSource{
			PayPal: paypalSource{
				ExperienceContext: experienceContext{
					ReturnURL: c.returnURL,
					CancelURL: c.cancelURL,
				},
			},
		},
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", req, &resp, "create order"); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	intent := &Intent{
		ID:         resp.ID,
		Status:     resp.Status,
		ApproveURL: resp.link("payer-action"),
	}
	if intent.ApproveURL == "" {
		intent.ApproveURL = resp.link("approve")
	}
	c.log(ctx, "response", "create_order", map[string]any{
		"intent_id": intent.ID,
		"status":    intent.Status,
	})
	return intent, nil
}

// CaptureOrder finalizes an approved intent. A repeat capture of the same
// intent is reported by PayPal as ORDER_ALREADY_CAPTURED; that is surfaced as
// a completed capture so settlement stays idempotent at this layer too.
func (c *Client) CaptureOrder(ctx context.Context, intentID string) (*Capture, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id is required")
	}
	c.log(ctx, "request", "capture_order", map[string]any{"intent_id": intentID})

	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(intentID))
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &resp, "capture order"); err != nil {
		if issue := issueOf(err); issue == "ORDER_ALREADY_CAPTURED" {
			// Recover the capture id from the earlier attempt so settlement
			// records the real transaction reference.
			var current orderResponse
			getPath := fmt.Sprintf("/v2/checkout/orders/%s", url.PathEscape(intentID))
			if getErr := c.do(ctx, http.MethodGet, getPath, nil, &current, "get order"); getErr != nil {
				c.log(ctx, "error", "capture_order", map[string]any{"error": getErr.Error()})
				return nil, getErr
			}
			captured := &Capture{CaptureID: current.captureID(), Status: "COMPLETED"}
			c.log(ctx, "response", "capture_order", map[string]any{
				"intent_id":  intentID,
				"capture_id": captured.CaptureID,
				"status":     captured.Status,
				"repeat":     true,
			})
			return captured, nil
		}
		c.log(ctx, "error", "capture_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	captured := &Capture{
		CaptureID: resp.captureID(),
		Status:    resp.Status,
	}
	c.log(ctx, "response", "capture_order", map[string]any{
		"intent_id":  intentID,
		"capture_id": captured.CaptureID,
		"status":     captured.Status,
	})
	return captured, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("paypal %s failed", op))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("paypal %s failed", op))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed", op))
	}

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp.StatusCode, raw, op)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s returned malformed body", op))
		}
	}
	return nil
}

// token returns a cached OAuth token, refreshing it via client credentials
// when it is within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "paypal token request failed")
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal token request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal token request failed")
	}
	if resp.StatusCode >= 400 {
		return "", c.mapAPIError(resp.StatusCode, raw, "fetch token")
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal token response malformed")
	}
	if payload.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "paypal token response missing access token")
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *Client) mapAPIError(status int, raw []byte, op string) error {
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)

	issue := body.Name
	for _, detail := range body.Details {
		if detail.Issue != "" {
			issue = detail.Issue
			break
		}
	}

	code := domainCodeForStatus(status)
	if status == http.StatusUnprocessableEntity {
		code = pkgerrors.CodeStateConflict
	}

	err := pkgerrors.New(code, fmt.Sprintf("paypal %s failed", op))
	if issue != "" {
		return err.WithDetails(map[string]any{"issue": issue})
	}
	return err
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paypal %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paypal %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "email", "phone", "payer"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

// issueOf pulls the gateway issue code out of a mapped error, if present.
func issueOf(err error) string {
	var domainErr *pkgerrors.Error
	if !errors.As(err, &domainErr) {
		return ""
	}
	details, _ := domainErr.Details().(map[string]any)
	issue, _ := details["issue"].(string)
	return issue
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, liveEnv:
		return env, nil
	case "production":
		return liveEnv, nil
	default:
		return "", errInvalidPayPalEnv
	}
}
