package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"aquaflow-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

var subscriptionColumns = []string{"endpoint", "p256dh", "auth", "unit_id", "created_at"}

const subscriptionQuery = `SELECT \* FROM "push_subscriptions" WHERE unit_id = \$1 OR unit_id IS NULL`

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, 1, db, &webpush.Options{}, "/alerts")

	alert := model.Alert{UnitID: "AQUA-VND-001", Kind: model.AlertWaterLevel, Title: "low"}
	assert.True(t, wp.Dispatch(alert))

	// The queue holds one alert; the next one is dropped instead of blocking.
	assert.False(t, wp.Dispatch(alert))

	select {
	case job := <-wp.jobs:
		assert.Equal(t, alert, job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, 4, gormDB, &webpush.Options{}, "/alerts")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends the alert to unit and fleet-wide subscriptions", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		var endpoints []string
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, Message{
					Title:  "AQUA-VND-001 water CRITICAL",
					Body:   "Reservoir is at 12%.",
					URL:    "/alerts",
					UnitID: "AQUA-VND-001",
				}, msg)
				mu.Lock()
				endpoints = append(endpoints, sub.Endpoint)
				mu.Unlock()
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("AQUA-VND-001").
			WillReturnRows(sqlmock.NewRows(subscriptionColumns).
				AddRow("https://example.com/unit", "p256", "auth", "AQUA-VND-001", time.Now()).
				AddRow("https://example.com/fleet", "p256", "auth", nil, time.Now()))

		wp.Dispatch(model.Alert{
			UnitID: "AQUA-VND-001",
			Kind:   model.AlertWaterLevel,
			Title:  "AQUA-VND-001 water CRITICAL",
			Body:   "Reservoir is at 12%.",
		})
		wg.Wait()
		assert.ElementsMatch(t, []string{"https://example.com/unit", "https://example.com/fleet"}, endpoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	for _, status := range []int{http.StatusGone, http.StatusNotFound} {
		t.Run(fmt.Sprintf("deletes subscription on %d", status), func(t *testing.T) {
			endpoint := fmt.Sprintf("https://example.com/expired-%d", status)
			wp.sender = &mockSender{
				SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
					return response(status), nil
				},
			}

			mock.ExpectQuery(subscriptionQuery).
				WithArgs("AQUA-VND-002").
				WillReturnRows(sqlmock.NewRows(subscriptionColumns).
					AddRow(endpoint, "p256", "auth", "AQUA-VND-002", time.Now()))

			mock.ExpectBegin()
			mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
				WithArgs(endpoint).
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()

			wp.Dispatch(model.Alert{UnitID: "AQUA-VND-002", Kind: model.AlertSystemStatus, Title: "AQUA-VND-002 is Offline"})

			assert.Eventually(t, func() bool {
				return mock.ExpectationsWereMet() == nil
			}, time.Second, 10*time.Millisecond)
		})
	}

	t.Run("skips sending when nobody subscribed", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("sender must not be called")
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("AQUA-VND-003").
			WillReturnRows(sqlmock.NewRows(subscriptionColumns))

		wp.Dispatch(model.Alert{UnitID: "AQUA-VND-003", Kind: model.AlertChangeBank})

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}
