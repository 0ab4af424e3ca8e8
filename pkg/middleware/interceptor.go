// Package middleware implements the HTTP interception layer: every inbound
// request is snapshotted, validated against the active configuration, and
// either forwarded unchanged or answered with a uniform 400. The rejection
// surface deliberately reveals nothing about which check fired.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-proxy/warden/pkg/config"
	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/policy"
	"github.com/warden-proxy/warden/pkg/telemetry"
	"github.com/warden-proxy/warden/pkg/validate"
)

// State tracks a request through the interception lifecycle. Requests move
// Pending to Validating, then terminally to Allowed or Rejected; there is no
// partial-acceptance state.
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateAllowed    State = "allowed"
	StateRejected   State = "rejected"
)

const (
	rejectionCode    = "REQUEST_REJECTED"
	rejectionMessage = "request failed security validation"
	requestIDHeader  = "X-Request-Id"
)

// Options configure the interceptor. Provider is required; everything else
// defaults to a working no-op.
type Options struct {
	Provider config.Provider
	Sink     Sink
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Interceptor validates requests before they reach the wrapped handler. The
// compiled validator and the forwarding-header policy engine are rebuilt only
// when the configuration snapshot generation changes, so the request path does
// no compilation work.
type Interceptor struct {
	provider config.Provider
	sink     Sink
	metrics  *Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	generation int64
	validator  *validate.Validator
	engine     *policy.Engine
	engineErr  error
}

// New constructs an interceptor over the given configuration provider.
func New(opts Options) *Interceptor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NewSlogSink(logger)
	}
	return &Interceptor{
		provider:   opts.Provider,
		sink:       sink,
		metrics:    opts.Metrics,
		logger:     logger,
		generation: -1,
	}
}

// Wrap returns a handler that validates every request before delegating to
// next. Allowed requests pass through byte-for-byte, with the body replaced by
// a replayable copy; rejected requests are answered here and never reach next.
func (i *Interceptor) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		ctx := r.Context()

		state := StatePending
		defer func() {
			i.logger.DebugContext(ctx, "request intercepted",
				"state", string(state), "method", r.Method, "path", r.URL.Path, "request_id", requestID)
		}()

		setSecurityHeaders(w.Header())
		w.Header().Set(requestIDHeader, requestID)

		cfg := i.provider.Current()
		validator, engine, engineErr := i.compiled(cfg)
		state = StateValidating

		snap, verdict, err := validate.BuildSnapshot(r, validator.Limits())
		if err != nil {
			// Snapshot construction faults fail closed.
			i.logger.ErrorContext(ctx, "request snapshot failed", "error", err, "request_id", requestID)
			verdict = domain.Reject(domain.CategoryMalformedBody, domain.ScopeBodyField, "")
		}

		var flags []domain.Event
		if verdict.Allowed {
			verdict, flags = validator.Validate(snap)
		}

		if verdict.Allowed && len(flags) > 0 {
			verdict, flags = i.applyForwardingMode(r, cfg, engine, engineErr, verdict, flags)
		}

		elapsed := time.Since(start)
		i.metrics.Observe(r.Method, verdict, flags, elapsed)
		telemetry.RecordValidation(ctx, telemetry.ValidationMetrics{
			Method:   r.Method,
			Verdict:  verdict,
			Flagged:  len(flags),
			Duration: elapsed,
		})
		telemetry.RecordSecurityEvent(trace.SpanFromContext(ctx), verdict, len(flags))

		for _, flag := range flags {
			flag.RequestID = requestID
			flag.Method = r.Method
			flag.Path = r.URL.Path
			i.sink.Record(ctx, flag)
		}

		if !verdict.Allowed {
			state = StateRejected
			i.sink.Record(ctx, domain.Event{
				Kind:      domain.EventRejected,
				Category:  verdict.Category,
				Scope:     verdict.Scope,
				Field:     verdict.Field,
				Rule:      verdict.Rule,
				RequestID: requestID,
				Method:    r.Method,
				Path:      r.URL.Path,
			})
			writeRejection(w, requestID)
			return
		}

		state = StateAllowed
		next.ServeHTTP(w, r)
	})
}

// applyForwardingMode resolves flagged forwarding headers according to the
// active mode. Ignore drops the flags, log passes them through to the sink,
// and policy consults the Rego engine per header with the option to escalate
// to a block. A broken policy engine rejects rather than silently allowing.
func (i *Interceptor) applyForwardingMode(r *http.Request, cfg config.Snapshot, engine *policy.Engine, engineErr error, verdict domain.Verdict, flags []domain.Event) (domain.Verdict, []domain.Event) {
	switch cfg.ForwardingMode {
	case config.ModeIgnore:
		return verdict, nil

	case config.ModePolicy:
		if engineErr != nil {
			i.logger.Error("forwarding header policy unavailable", "error", engineErr)
			first := flags[0]
			return domain.Reject(domain.CategoryPolicyViolation, first.Scope, first.Field), nil
		}

		kept := flags[:0]
		for _, flag := range flags {
			decision, err := engine.Evaluate(r.Context(), policy.Input{
				Header: flag.Field,
				Method: r.Method,
				Path:   r.URL.Path,
			})
			if err != nil {
				i.logger.Error("forwarding header policy evaluation failed", "error", err, "header", flag.Field)
				return domain.Reject(domain.CategoryPolicyViolation, flag.Scope, flag.Field), nil
			}
			switch decision.Action {
			case policy.ActionBlock:
				return domain.Reject(domain.CategoryPolicyViolation, flag.Scope, flag.Field).
					WithRule(decision.Reason), kept
			case policy.ActionIgnore:
				continue
			default:
				kept = append(kept, flag)
			}
		}
		return verdict, kept

	default:
		return verdict, flags
	}
}

// compiled returns the validator and policy engine for the given snapshot,
// rebuilding them only when the generation advances.
func (i *Interceptor) compiled(cfg config.Snapshot) (*validate.Validator, *policy.Engine, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if cfg.Generation != i.generation || i.validator == nil {
		i.validator = validate.New(cfg.Limits, cfg.Library)
		i.engine = nil
		i.engineErr = nil

		if cfg.ForwardingMode == config.ModePolicy {
			modules := map[string]string{}
			if cfg.RegoModule != "" {
				modules["forwarding.rego"] = cfg.RegoModule
			}
			i.engine, i.engineErr = policy.NewEngine(context.Background(), policy.EngineOptions{Modules: modules})
		}
		i.generation = cfg.Generation
	}

	return i.validator, i.engine, i.engineErr
}

// writeRejection emits the uniform rejection response. Status and body are
// identical for every rejection category so probing cannot distinguish which
// check fired.
func writeRejection(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{
		Code:      rejectionCode,
		Message:   rejectionMessage,
		RequestID: requestID,
	})
}
