// Package policy integrates the external OPA-compatible policy engine into
// the decision path and the policy lifecycle. The engine is optional; when
// disabled or unreachable the decision path composes without it.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Result is the engine's verdict on one decision input. An absent result
// document maps to deny.
type Result struct {
	Allow  bool
	Deny   bool
	Reason string
}

// Engine is the decision-path and lifecycle surface of the policy engine.
type Engine interface {
	Enabled() bool
	// Evaluate posts the decision input to the configured policy path.
	// Transport and engine errors come back as errors; the caller decides
	// how to degrade.
	Evaluate(ctx context.Context, input map[string]interface{}) (*Result, error)
	// Compile asks the engine to compile policy content, returning
	// structured issues. An empty slice means the content compiled clean.
	Compile(ctx context.Context, content string) ([]models.ValidationIssue, error)
	HealthCheck(ctx context.Context) error
}

type opaEngine struct {
	client      *http.Client
	baseURL     string
	policyPath  string
	compilePath string
	retries     uint
	logger      logger.Logger
}

// NewEngine builds the engine from config; a disabled config yields the
// disabled sentinel so callers never nil-check.
func NewEngine(cfg config.PolicyEngineConfig, log logger.Logger) Engine {
	if !cfg.Enabled {
		return disabledEngine{}
	}
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond}
	return &opaEngine{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		policyPath:  cfg.PolicyPath,
		compilePath: cfg.CompilePath,
		retries:     uint(cfg.RetryAttempts),
		logger:      log,
	}
}

func (e *opaEngine) Enabled() bool { return true }

// opaResponse covers both shapes OPA returns for a data query: a bare
// boolean result or a document with allow/deny/reason fields.
type opaResponse struct {
	Result json.RawMessage `json:"result"`
}

type opaDocument struct {
	Allow  *bool  `json:"allow"`
	Deny   *bool  `json:"deny"`
	Reason string `json:"reason"`
}

func (e *opaEngine) Evaluate(ctx context.Context, input map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return nil, fmt.Errorf("marshal policy input: %w", err)
	}

	operation := func() (*Result, error) {
		resp, err := e.post(ctx, e.baseURL+e.policyPath, body)
		if err != nil {
			// Transport failure: retryable.
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			// Engine answered; retrying the same input will not help.
			return nil, backoff.Permanent(fmt.Errorf("policy engine returned %d: %s", resp.StatusCode, string(raw)))
		}

		var wire opaResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode policy response: %w", err))
		}
		return parseResult(wire.Result)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(e.retries+1))
	if err != nil {
		monitoring.RecordPolicyEngineError()
		return nil, err
	}
	return result, nil
}

// parseResult folds the two wire shapes into a Result. A missing result
// document denies.
func parseResult(raw json.RawMessage) (*Result, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Result{Deny: true, Reason: "policy produced no result"}, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return &Result{Allow: true}, nil
		}
		return &Result{Deny: true, Reason: "policy denied"}, nil
	}
	var doc opaDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("unrecognized policy result shape: %w", err))
	}
	res := &Result{Reason: doc.Reason}
	if doc.Deny != nil && *doc.Deny {
		res.Deny = true
		if res.Reason == "" {
			res.Reason = "policy denied"
		}
		return res, nil
	}
	if doc.Allow != nil && *doc.Allow {
		res.Allow = true
		return res, nil
	}
	res.Deny = true
	if res.Reason == "" {
		res.Reason = "policy produced no result"
	}
	return res, nil
}

type compileWire struct {
	Errors []struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Location struct {
			Row int `json:"row"`
			Col int `json:"col"`
		} `json:"location"`
	} `json:"errors"`
}

func (e *opaEngine) Compile(ctx context.Context, content string) ([]models.ValidationIssue, error) {
	body, err := json.Marshal(map[string]interface{}{"content": content})
	if err != nil {
		return nil, err
	}
	resp, err := e.post(ctx, e.baseURL+e.compilePath, body)
	if err != nil {
		monitoring.RecordPolicyEngineError()
		return nil, fmt.Errorf("policy compile request: %w", err)
	}
	defer resp.Body.Close()

	// OPA reports compile failures with a 400 carrying structured errors.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		monitoring.RecordPolicyEngineError()
		return nil, fmt.Errorf("policy compile returned %d: %s", resp.StatusCode, string(raw))
	}

	var wire compileWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode compile response: %w", err)
	}
	issues := make([]models.ValidationIssue, 0, len(wire.Errors))
	for _, we := range wire.Errors {
		issue := models.ValidationIssue{Code: we.Code, Message: we.Message}
		if we.Location.Row > 0 {
			issue.Location = fmt.Sprintf("%d:%d", we.Location.Row, we.Location.Col)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (e *opaEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("policy engine health returned %d", resp.StatusCode)
	}
	return nil
}

func (e *opaEngine) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return e.client.Do(req)
}

// disabledEngine is the sentinel used when no engine is configured.
type disabledEngine struct{}

func (disabledEngine) Enabled() bool { return false }

func (disabledEngine) Evaluate(ctx context.Context, input map[string]interface{}) (*Result, error) {
	return nil, models.E(models.ErrPreconditionFailed, "policy engine is not enabled")
}

func (disabledEngine) Compile(ctx context.Context, content string) ([]models.ValidationIssue, error) {
	return nil, models.E(models.ErrPreconditionFailed, "policy engine is not enabled")
}

func (disabledEngine) HealthCheck(ctx context.Context) error { return nil }
