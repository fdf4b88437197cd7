package sender

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hookrelay/hookrelay/internal/signer"
)

// Outcome classifies one delivery attempt. Only the HTTP status and the
// transport result feed the classification; response bodies are ignored.
type Outcome int

const (
	// OutcomeDelivered : 2xx, terminal success.
	OutcomeDelivered Outcome = iota
	// OutcomeGone : 410, the subscriber asked to be unsubscribed.
	OutcomeGone
	// OutcomeRetry : 429, 5xx, network error, or open breaker.
	OutcomeRetry
	// OutcomeRejected : other 4xx or a destination validation failure.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeGone:
		return "gone"
	case OutcomeRetry:
		return "retry"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Config struct {
	Timeout           time.Duration
	RequireHTTPS      bool
	AllowedDomains    []string
	TimestampHeader   string
	IdempotencyHeader string
	SignatureHeader   string
}

// Request is one outbound attempt: the exact body bytes to send, the
// decrypted signing secret (may be empty), and the subscriber-facing
// idempotency key.
type Request struct {
	URL            string
	Body           []byte
	Secret         string
	IdempotencyKey string
}

// Result records the attempt for the ledger. Signature is always set: the
// body is signed before destination validation, matching the wire contract
// that every attempt carries a signature. DurationMs is nil when the attempt
// was rejected before any request left the process.
type Result struct {
	Outcome    Outcome
	HTTPStatus *int
	DurationMs *int64
	Signature  string
	Error      string // empty on success
}

// Sender performs the signed HTTP POST to subscriber endpoints.
type Sender struct {
	cfg      Config
	client   *http.Client
	breakers *BreakerRegistry
}

func New(cfg Config, breakers *BreakerRegistry) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = "X-Hookrelay-Timestamp"
	}
	if cfg.IdempotencyHeader == "" {
		cfg.IdempotencyHeader = "X-Hookrelay-Idempotency-Key"
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Hookrelay-Signature"
	}
	return &Sender{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		breakers: breakers,
	}
}

// Send signs, validates the destination, POSTs, and classifies the response.
// Any HTTP status is a normal response; only transport errors are exceptional.
func (s *Sender) Send(ctx context.Context, req Request) Result {
	ts := time.Now().Unix()
	sig := signer.Sign(req.Secret, ts, req.Body)

	u, verr := s.validateURL(req.URL)
	if verr != nil {
		return Result{
			Outcome:   OutcomeRejected,
			Signature: sig,
			Error:     verr.Error(),
		}
	}

	var br *MicroBreaker
	if s.breakers != nil {
		br = s.breakers.Get(u.Hostname())
		if !br.TryAcquire() {
			return Result{
				Outcome:   OutcomeRetry,
				Signature: sig,
				Error:     fmt.Sprintf("circuit open for host %s", u.Hostname()),
			}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{
			Outcome:   OutcomeRejected,
			Signature: sig,
			Error:     fmt.Sprintf("build request: %v", err),
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(s.cfg.TimestampHeader, strconv.FormatInt(ts, 10))
	httpReq.Header.Set(s.cfg.IdempotencyHeader, req.IdempotencyKey)
	httpReq.Header.Set(s.cfg.SignatureHeader, sig)

	start := time.Now()
	res, err := s.client.Do(httpReq)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		if br != nil {
			br.OnFailure()
		}
		return Result{
			Outcome:    OutcomeRetry,
			DurationMs: &durationMs,
			Signature:  sig,
			Error:      fmt.Sprintf("request failed: %v", err),
		}
	}
	defer res.Body.Close()

	if br != nil {
		if res.StatusCode >= 500 {
			br.OnFailure()
		} else {
			br.OnSuccess()
		}
	}

	status := res.StatusCode
	out := Result{
		HTTPStatus: &status,
		DurationMs: &durationMs,
		Signature:  sig,
	}

	switch {
	case status >= 200 && status < 300:
		out.Outcome = OutcomeDelivered
	case status == http.StatusGone:
		out.Outcome = OutcomeGone
		out.Error = "endpoint returned 410 Gone"
	case status == http.StatusTooManyRequests || status >= 500:
		out.Outcome = OutcomeRetry
		out.Error = fmt.Sprintf("endpoint returned status %d", status)
	default:
		out.Outcome = OutcomeRejected
		out.Error = fmt.Sprintf("endpoint returned status %d", status)
	}
	return out
}

// validateURL enforces the HTTPS requirement and the optional destination
// domain allow-list before any network traffic leaves the process.
func (s *Sender) validateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid destination url: %v", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if s.cfg.RequireHTTPS {
			return nil, fmt.Errorf("destination %q is not https", u.Host)
		}
	default:
		return nil, fmt.Errorf("unsupported destination scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("destination url has no host")
	}

	if len(s.cfg.AllowedDomains) > 0 {
		host := strings.ToLower(u.Hostname())
		allowed := false
		for _, d := range s.cfg.AllowedDomains {
			if host == strings.ToLower(d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("destination host %q not in allow-list", host)
		}
	}
	return u, nil
}
