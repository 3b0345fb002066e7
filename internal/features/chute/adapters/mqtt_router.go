package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/chute/domain"

	"go.uber.org/zap"
)

// ParcelDetectedMessage is published to the upstream when a parcel enters the line.
type ParcelDetectedMessage struct {
	ParcelID   uint64    `json:"parcel_id"`
	DetectedAt time.Time `json:"detected_at"`
}

// ChuteAssignedMessage is the push-back from the upstream.
type ChuteAssignedMessage struct {
	ParcelID   uint64    `json:"parcel_id"`
	ChuteID    int64     `json:"chute_id"`
	AssignedAt time.Time `json:"assigned_at"`
	Source     string    `json:"source,omitempty"`
	IsFallback bool      `json:"is_fallback,omitempty"`
}

type assignmentReply struct {
	assignment domain.ChuteAssignment
	err        error
}

// MQTTRouter requests chutes by publishing a detection and waiting for the
// matching chute_assigned message.
type MQTTRouter struct {
	broker          broker.Broker
	detectedTopic   string
	assignmentTopic string
	now             func() time.Time

	mu      sync.Mutex
	pending map[uint64]chan assignmentReply
}

// NewMQTTRouter creates a router and subscribes to the assignment topic.
func NewMQTTRouter(b broker.Broker, detectedTopic, assignmentTopic string) (*MQTTRouter, error) {
	r := &MQTTRouter{
		broker:          b,
		detectedTopic:   detectedTopic,
		assignmentTopic: assignmentTopic,
		now:             time.Now,
		pending:         make(map[uint64]chan assignmentReply),
	}
	if err := b.Subscribe(assignmentTopic, r.onAssignment); err != nil {
		return nil, err
	}
	return r, nil
}

// AssignChute publishes the detection and blocks until the assignment arrives or ctx ends.
func (r *MQTTRouter) AssignChute(ctx context.Context, parcelID uint64) (domain.ChuteAssignment, error) {
	reply := make(chan assignmentReply, 1)

	r.mu.Lock()
	r.pending[parcelID] = reply
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.pending[parcelID] == reply {
			delete(r.pending, parcelID)
		}
		r.mu.Unlock()
	}()

	if err := r.publishDetected(ctx, parcelID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingTimeout, err)
		}
		return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingUnavailable, err)
	}

	select {
	case res := <-reply:
		return res.assignment, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingTimeout, ctx.Err())
		}
		return domain.ChuteAssignment{}, domain.NewRoutingError(domain.RoutingUnavailable, ctx.Err())
	}
}

// NotifyParcelDetected publishes the detection without waiting for an assignment.
func (r *MQTTRouter) NotifyParcelDetected(ctx context.Context, parcelID uint64) bool {
	if err := r.publishDetected(ctx, parcelID); err != nil {
		logger.Named("upstream").Warn("Failed to notify parcel detection",
			zap.Uint64("parcel_id", parcelID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (r *MQTTRouter) publishDetected(ctx context.Context, parcelID uint64) error {
	payload, err := json.Marshal(ParcelDetectedMessage{ParcelID: parcelID, DetectedAt: r.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}
	return r.broker.Publish(ctx, r.detectedTopic, payload)
}

func (r *MQTTRouter) onAssignment(payload []byte) {
	log := logger.Named("upstream")

	var head struct {
		ParcelID uint64 `json:"parcel_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.ParcelID == 0 {
		log.Warn("Dropping chute assignment without parcel id", zap.ByteString("payload", payload))
		return
	}

	r.mu.Lock()
	reply, ok := r.pending[head.ParcelID]
	r.mu.Unlock()
	if !ok {
		log.Debug("Late or unsolicited chute assignment", zap.Uint64("parcel_id", head.ParcelID))
		return
	}

	var res assignmentReply
	var msg ChuteAssignedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		res.err = domain.NewRoutingError(domain.RoutingInvalidResponse, err)
	} else {
		assignedAt := msg.AssignedAt
		if assignedAt.IsZero() {
			assignedAt = r.now()
		}
		res.assignment = domain.ChuteAssignment{
			ParcelID:   msg.ParcelID,
			ChuteID:    msg.ChuteID,
			IsSuccess:  msg.ChuteID > 0,
			Source:     msg.Source,
			IsFallback: msg.IsFallback,
			AssignedAt: assignedAt,
		}
	}

	select {
	case reply <- res:
	default:
		// a reply is already waiting; duplicates are dropped
	}
}
