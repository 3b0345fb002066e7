package adapters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"parcel-sorter/internal/features/sorting/domain"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	// EventTypeSortingCompleted is the CloudEvents type of completion notifications.
	EventTypeSortingCompleted = "sorter.parcel.sorting-completed"
	eventSource               = "parcel-sorter"
)

// CloudEventsNotifier posts completion notifications as CloudEvents over HTTP.
type CloudEventsNotifier struct {
	client  cloudevents.Client
	sink    string
	backoff time.Duration
	retries int
}

// NewCloudEventsNotifier creates a notifier that sends to sink.
func NewCloudEventsNotifier(sink string) (*CloudEventsNotifier, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	return &CloudEventsNotifier{
		client:  client,
		sink:    sink,
		backoff: 20 * time.Millisecond,
		retries: 5,
	}, nil
}

// Notify sends n, retrying with exponential backoff until ctx ends.
func (n *CloudEventsNotifier) Notify(ctx context.Context, notification domain.SortingCompletedNotification) error {
	event := cloudevents.NewEvent(cloudevents.VersionV1)
	event.SetID(uuid.NewString())
	event.SetType(EventTypeSortingCompleted)
	event.SetSource(eventSource)
	event.SetSubject(strconv.FormatUint(notification.ParcelID, 10))
	event.SetTime(notification.CompletedAt)
	if err := event.SetData(cloudevents.ApplicationJSON, notification); err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	ctx = cloudevents.ContextWithTarget(ctx, n.sink)
	ctx = cloudevents.ContextWithRetriesExponentialBackoff(ctx, n.backoff, n.retries)

	if result := n.client.Send(ctx, event); !cloudevents.IsACK(result) {
		return fmt.Errorf("notification for parcel %d not acknowledged: %w", notification.ParcelID, result)
	}
	return nil
}
