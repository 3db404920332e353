package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"parking-bridge-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// mockStore is an in-memory Store backed by func fields.
type mockStore struct {
	SubscriptionsFunc      func(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscriptionFunc func(ctx context.Context, endpoint string) error
}

func (m *mockStore) DB() *gorm.DB { return nil }

func (m *mockStore) UpsertSubscription(ctx context.Context, sub model.PushSubscription) error {
	return nil
}

func (m *mockStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if m.DeleteSubscriptionFunc != nil {
		return m.DeleteSubscriptionFunc(ctx, endpoint)
	}
	return nil
}

func (m *mockStore) Subscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	return m.SubscriptionsFunc(ctx)
}

func okResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, &mockStore{}, &webpush.Options{})

	wp.Dispatch(3)

	select {
	case job := <-wp.jobs:
		assert.Equal(t, 3, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	store := &mockStore{}
	wp := NewWorkerPool(1, store, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification to every subscription", func(t *testing.T) {
		store.SubscriptionsFunc = func(ctx context.Context) ([]model.PushSubscription, error) {
			return []model.PushSubscription{
				{Endpoint: "https://example.com/push/a", P256DH: "key_a", Auth: "auth_a"},
				{Endpoint: "https://example.com/push/b", P256DH: "key_b", Auth: "auth_b"},
			}, nil
		}

		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var endpoints []string
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()
				assert.Equal(t, "Parking available again: 2 slot(s) open for reservation", string(payload))
				wg.Done()
				return okResponse(http.StatusCreated), nil
			},
		}

		wp.Dispatch(2)
		wg.Wait()

		assert.ElementsMatch(t, []string{
			"https://example.com/push/a",
			"https://example.com/push/b",
		}, endpoints)
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		store.SubscriptionsFunc = func(ctx context.Context) ([]model.PushSubscription, error) {
			return []model.PushSubscription{
				{Endpoint: "https://example.com/expired", P256DH: "key", Auth: "auth"},
			}, nil
		}

		var wg sync.WaitGroup
		wg.Add(1)

		var deleted string
		store.DeleteSubscriptionFunc = func(ctx context.Context, endpoint string) error {
			deleted = endpoint
			wg.Done()
			return nil
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return okResponse(http.StatusGone), nil
			},
		}

		wp.Dispatch(1)
		wg.Wait()

		assert.Equal(t, "https://example.com/expired", deleted)
	})

	t.Run("send failure skips delete", func(t *testing.T) {
		store.SubscriptionsFunc = func(ctx context.Context) ([]model.PushSubscription, error) {
			return []model.PushSubscription{
				{Endpoint: "https://example.com/flaky", P256DH: "key", Auth: "auth"},
			}, nil
		}

		store.DeleteSubscriptionFunc = func(ctx context.Context, endpoint string) error {
			t.Errorf("unexpected delete of %s", endpoint)
			return nil
		}

		var wg sync.WaitGroup
		wg.Add(1)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				wg.Done()
				return nil, assert.AnError
			},
		}

		wp.Dispatch(1)
		wg.Wait()

		// Give the worker a moment to (wrongly) reach the store.
		time.Sleep(50 * time.Millisecond)
	})
}
