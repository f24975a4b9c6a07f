package worker

import (
	"context"
	"testing"
	"time"

	"noteshub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccess struct {
	result bool
	calls  int
}

func (s *stubAccess) GrantAccess(context.Context, string, string) bool {
	s.calls++
	return s.result
}

type stubPublisher struct {
	requested []*models.AccessGrantRequestedEvent
	granted   []*models.AccessGrantedEvent
	failed    []*models.AccessGrantFailedEvent
}

func (s *stubPublisher) PublishAccessGrantRequested(_ context.Context, e *models.AccessGrantRequestedEvent) error {
	s.requested = append(s.requested, e)
	return nil
}

func (s *stubPublisher) PublishAccessGranted(_ context.Context, e *models.AccessGrantedEvent) error {
	s.granted = append(s.granted, e)
	return nil
}

func (s *stubPublisher) PublishAccessGrantFailed(_ context.Context, e *models.AccessGrantFailedEvent) error {
	s.failed = append(s.failed, e)
	return nil
}

func request(attempt int) *models.AccessGrantRequestedEvent {
	return &models.AccessGrantRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeAccessGrantRequested,
		},
		PurchaseID: "purchase-1",
		FolderID:   "folder-x",
		UserEmail:  "buyer@example.com",
		Attempt:    attempt,
	}
}

func TestHandleGrantRequestSuccess(t *testing.T) {
	access := &stubAccess{result: true}
	pub := &stubPublisher{}
	w := NewAccessWorker(nil, access, pub, 5, 0)

	err := w.handleGrantRequest(context.Background(), request(1))
	require.NoError(t, err)

	assert.Equal(t, 1, access.calls)
	require.Len(t, pub.granted, 1)
	assert.Equal(t, "purchase-1", pub.granted[0].PurchaseID)
	assert.Empty(t, pub.requested)
	assert.Empty(t, pub.failed)
}

func TestHandleGrantRequestRequeues(t *testing.T) {
	access := &stubAccess{result: false}
	pub := &stubPublisher{}
	w := NewAccessWorker(nil, access, pub, 5, 0)

	err := w.handleGrantRequest(context.Background(), request(2))
	require.NoError(t, err)

	require.Len(t, pub.requested, 1)
	assert.Equal(t, 3, pub.requested[0].Attempt)
	assert.Empty(t, pub.granted)
	assert.Empty(t, pub.failed)
}

func TestHandleGrantRequestRequeueHonorsCancel(t *testing.T) {
	access := &stubAccess{result: false}
	pub := &stubPublisher{}
	w := NewAccessWorker(nil, access, pub, 5, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.handleGrantRequest(ctx, request(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.requested, "no requeue once shutdown started")
}

func TestHandleGrantRequestExhausted(t *testing.T) {
	access := &stubAccess{result: false}
	pub := &stubPublisher{}
	w := NewAccessWorker(nil, access, pub, 5, 0)

	err := w.handleGrantRequest(context.Background(), request(5))
	require.NoError(t, err)

	assert.Empty(t, pub.requested, "no requeue past the attempt cap")
	require.Len(t, pub.failed, 1)
	assert.Equal(t, 5, pub.failed[0].Attempts)
}
