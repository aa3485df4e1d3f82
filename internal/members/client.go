// Package members talks to member institutions over their callback API.
package members

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultClientID = "YONA"

	pathFundingDecision   = "/api/member/funding-decision"
	pathRequestDescriptor = "/api/member/request-descriptor"
	pathReceiveTemplate   = "/api/member/receive-template"
	pathUserAddresses     = "/api/member/get-user-addresses"
	pathHealth            = "/api/member/health"
)

var (
	ErrNoEndpoint        = errors.New("member api endpoint not configured")
	ErrMemberUnreachable = errors.New("member unreachable")
	ErrMemberRejected    = errors.New("member rejected request")
)

var callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "yona_member_call_duration_seconds",
	Help:    "Outbound member API call latency",
	Buckets: prometheus.DefBuckets,
}, []string{"endpoint", "outcome"})

var tracer = otel.Tracer("YONASettlement/members")

// RejectedError is a non-2xx answer from a member.
type RejectedError struct {
	Member  string
	Path    string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("member %s %s: status %d: %s", e.Member, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("member %s %s: status %d", e.Member, e.Path, e.Status)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrMemberRejected
}

// NormalizeEndpoint turns a stored member endpoint into a base URL.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	endpoint = strings.TrimRight(endpoint, "/")
	switch {
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		return endpoint, nil
	case strings.HasPrefix(endpoint, "localhost"), strings.HasPrefix(endpoint, "127.0.0.1"):
		return "http://" + endpoint, nil
	default:
		return "https://" + endpoint, nil
	}
}

func CallbackURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/api/webhooks/" + name
}

type Client struct {
	HTTP     *http.Client
	ClientID string
	Probe    bool
	Logger   *zap.Logger
}

func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		ClientID: DefaultClientID,
		Logger:   logger,
	}
}

type FundingDecisionRequest struct {
	OriginatorYonaID string                 `json:"originator_yona_id"`
	Currency         string                 `json:"currency"`
	Amount           string                 `json:"amount"`
	Chain            string                 `json:"chain"`
	TransactionType  models.TransactionType `json:"transaction_type"`
}

type FundingDecision struct {
	Success     bool          `json:"success"`
	SendAsset   *models.Asset `json:"send_asset"`
	SendAccount string        `json:"send_account"`
	Message     string        `json:"message"`
}

type DescriptorRequest struct {
	IntentID             string                 `json:"intent_id"`
	OriginatorMemberName string                 `json:"originator_member_name"`
	BeneficiaryYonaID    string                 `json:"beneficiary_yona_id"`
	Currency             string                 `json:"currency"`
	Amount               string                 `json:"amount"`
	TransactionType      models.TransactionType `json:"transaction_type"`
	Chain                string                 `json:"chain"`
	CallbackURL          string                 `json:"callback_url"`
}

type TemplatePush struct {
	IntentID              string                 `json:"intent_id"`
	TransactionType       models.TransactionType `json:"transaction_type"`
	BeneficiaryMemberName string                 `json:"beneficiary_member_name"`
	OriginatorYonaID      string                 `json:"originator_yona_id"`
	DescriptorCompactJWS  string                 `json:"descriptor_compact_jws"`
	BeneficiaryJWKS       models.KeySet          `json:"beneficiary_jwks"`
	Template              ledger.PaymentTx       `json:"xrpl_payment_template"`
	CallbackURL           string                 `json:"callback_url"`
}

type TemplateAck struct {
	IntentID        string `json:"intent_id"`
	TRCorrelationID string `json:"tr_correlation_id,omitempty"`
}

type ack struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RequestFundingDecision asks the originator which asset and account will fund the payment.
func (c *Client) RequestFundingDecision(ctx context.Context, m models.Member, req FundingDecisionRequest) (*FundingDecision, error) {
	var out FundingDecision
	if err := c.post(ctx, m, pathFundingDecision, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestDescriptor asks the beneficiary to sign a descriptor and deliver it to CallbackURL.
func (c *Client) RequestDescriptor(ctx context.Context, m models.Member, req DescriptorRequest) error {
	var out ack
	if err := c.post(ctx, m, pathRequestDescriptor, req, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RejectedError{Member: m.MemberName, Path: pathRequestDescriptor, Status: http.StatusOK, Message: out.Message}
	}
	return nil
}

func (c *Client) SendTemplate(ctx context.Context, m models.Member, push TemplatePush) (*TemplateAck, error) {
	var out ack
	if err := c.post(ctx, m, pathReceiveTemplate, push, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &RejectedError{Member: m.MemberName, Path: pathReceiveTemplate, Status: http.StatusOK, Message: out.Message}
	}
	res := &TemplateAck{IntentID: push.IntentID}
	if len(out.Data) > 0 && string(out.Data) != "null" {
		if err := json.Unmarshal(out.Data, res); err != nil {
			c.Logger.Warn("unreadable template ack data", zap.String("member", m.MemberName), zap.Error(err))
		}
	}
	return res, nil
}

// GetUserAddresses lists the classic addresses a member holds for yonaID.
// Entries may be plain strings or objects carrying classic_address.
func (c *Client) GetUserAddresses(ctx context.Context, m models.Member, yonaID string) ([]string, error) {
	var out struct {
		Success   bool              `json:"success"`
		Message   string            `json:"message"`
		Addresses []json.RawMessage `json:"addresses"`
	}
	if err := c.post(ctx, m, pathUserAddresses, map[string]string{"yona_id": yonaID}, &out); err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(out.Addresses))
	for _, raw := range out.Addresses {
		if a := addressOf(raw); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs, nil
}

func addressOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ClassicAddress string `json:"classic_address"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ClassicAddress
	}
	return ""
}

// CheckAvailability reports whether a member can be called. With Probe set the member's
// health endpoint must answer 2xx.
func (c *Client) CheckAvailability(ctx context.Context, m models.Member) error {
	base, err := NormalizeEndpoint(m.APIEndpoint)
	if err != nil {
		return fmt.Errorf("member %s: %w", m.MemberName, err)
	}
	if !c.Probe {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+pathHealth, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, m)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMemberUnreachable, m.MemberName, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s health status %d", ErrMemberUnreachable, m.MemberName, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, m models.Member) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Member-ID", m.MemberID)
	clientID := c.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}
	req.Header.Set("X-Client-ID", clientID)
}

func (c *Client) post(ctx context.Context, m models.Member, path string, body any, out any) (err error) {
	ctx, span := tracer.Start(ctx, "members.post")
	defer span.End()
	span.SetAttributes(attribute.String("member", m.MemberName), attribute.String("path", path))

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		callDuration.WithLabelValues(path, outcome).Observe(time.Since(start).Seconds())
	}()

	base, err := NormalizeEndpoint(m.APIEndpoint)
	if err != nil {
		return fmt.Errorf("member %s: %w", m.MemberName, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req, m)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Warn("member call failed",
			zap.String("member", m.MemberName),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s: %w", ErrMemberUnreachable, m.MemberName, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", ErrMemberUnreachable, m.MemberName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{
			Member:  m.MemberName,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(data, resp.StatusCode),
		}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response from %s: %w", path, m.MemberName, err)
	}
	return nil
}

func errorMessage(body []byte, status int) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("Member API error: %d", status)
}
