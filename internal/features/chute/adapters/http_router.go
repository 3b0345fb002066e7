package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/chute/domain"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// AssignRequest is the body of POST /api/chutes/assign.
type AssignRequest struct {
	ParcelID    uint64    `json:"parcel_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// AssignResponse is the upstream answer.
type AssignResponse struct {
	ChuteID    int64  `json:"chute_id"`
	IsSuccess  bool   `json:"is_success"`
	Source     string `json:"source"`
	IsFallback bool   `json:"is_fallback"`
}

// HTTPRouter asks the upstream for chutes over HTTP. It is meant for
// non-production setups; configuration refuses it in production.
type HTTPRouter struct {
	baseURL string
	client  *retryablehttp.Client
	now     func() time.Time
}

// NewHTTPRouter creates a new HTTPRouter.
func NewHTTPRouter(baseURL string, client *retryablehttp.Client) *HTTPRouter {
	return &HTTPRouter{
		baseURL: baseURL,
		client:  client,
		now:     time.Now,
	}
}

// AssignChute posts an assignment request and decodes the response.
func (r *HTTPRouter) AssignChute(ctx context.Context, parcelID uint64) (domain.ChuteAssignment, error) {
	resp, err := r.post(ctx, "/api/chutes/assign", AssignRequest{ParcelID: parcelID, RequestedAt: r.now()})
	if err != nil {
		return domain.ChuteAssignment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := domain.RoutingInvalidResponse
		if resp.StatusCode >= 500 {
			kind = domain.RoutingUnavailable
		}
		return domain.ChuteAssignment{}, domain.NewRoutingError(kind, fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var out AssignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingInvalidResponse, fmt.Errorf("failed to decode response: %w", err))
	}
	if !out.IsSuccess {
		return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingInvalidResponse, errors.New("upstream reported no assignment"))
	}

	return domain.ChuteAssignment{
		ParcelID:   parcelID,
		ChuteID:    out.ChuteID,
		IsSuccess:  out.IsSuccess,
		Source:     out.Source,
		IsFallback: out.IsFallback,
		AssignedAt: r.now(),
	}, nil
}

// NotifyParcelDetected posts the detection and reports whether it was accepted.
func (r *HTTPRouter) NotifyParcelDetected(ctx context.Context, parcelID uint64) bool {
	resp, err := r.post(ctx, "/api/parcels/detected", ParcelDetectedMessage{ParcelID: parcelID, DetectedAt: r.now()})
	if err != nil {
		logger.Named("upstream").Warn("Failed to notify parcel detection",
			zap.Uint64("parcel_id", parcelID),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 300
}

func (r *HTTPRouter) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, domain.NewRoutingError(domain.RoutingInvalidResponse, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewRoutingError(domain.RoutingUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewRoutingError(domain.RoutingTimeout, err)
		}
		return nil, domain.NewRoutingError(domain.RoutingUnavailable, err)
	}
	return resp, nil
}
