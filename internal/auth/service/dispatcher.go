package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/telemetry"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
	"go.opentelemetry.io/otel/attribute"
)

// GrantHandler runs one grant type end to end.
type GrantHandler interface {
	Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error)
}

// GrantHandlerFunc adapts a function to GrantHandler.
type GrantHandlerFunc func(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error)

func (f GrantHandlerFunc) Handle(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	return f(ctx, req)
}

// GrantDispatcher routes a token request to exactly one handler by grant
// type. It does no claims work of its own.
type GrantDispatcher struct {
	handlers  map[domain.GrantType]GrantHandler
	telemetry *telemetry.Telemetry
}

func NewGrantDispatcher(tel *telemetry.Telemetry, handlers map[domain.GrantType]GrantHandler) *GrantDispatcher {
	return &GrantDispatcher{handlers: handlers, telemetry: tel}
}

func (d *GrantDispatcher) Dispatch(ctx context.Context, req domain.TokenRequest) (domain.TokenResult, error) {
	grant, ok := domain.ParseGrantType(req.GrantType)
	if !ok {
		return domain.TokenResult{}, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType)
	}
	h, ok := d.handlers[grant]
	if !ok {
		return domain.TokenResult{}, fmt.Errorf("%w: %q is not enabled", ErrUnsupportedGrantType, req.GrantType)
	}

	ctx, span := d.telemetry.StartSpan(ctx, "grant."+grant.String(),
		attribute.String(telemetry.AttrGrantType, grant.String()),
		attribute.String(telemetry.AttrClientID, req.ClientID),
	)
	defer span.End()

	start := time.Now()
	res, err := h.Handle(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = ErrorCode(err)
		telemetry.RecordError(span, err)
		l := slogx.FromContext(ctx)
		if outcome == "server_error" {
			l.Error("grant failed", "grant_type", grant, "client_id", req.ClientID, "error", err)
		} else {
			l.Info("grant rejected", "grant_type", grant, "client_id", req.ClientID, "error", err)
		}
	}
	d.telemetry.RecordGrant(ctx, grant.String(), outcome, time.Since(start))

	return res, err
}
