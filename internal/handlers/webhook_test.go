package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/dogparkjp/parkgate/internal/store/memory"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	app  *fiber.App
	svc  *services.PinService
	lock *models.SmartLock
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	registrar := services.NewMockPinRegistrar()
	registrar.Latency = 0
	logs := memory.NewAccessLogStore()
	locks := memory.NewLockStore()

	lock := &models.SmartLock{
		Name:          "North Gate",
		ScienerLockID: 42,
		Enabled:       true,
	}
	require.NoError(t, locks.Create(context.Background(), lock))

	svc := services.NewPinService(registrar, logs, locks, 5*time.Minute)

	app := fiber.New()
	handler := NewWebhookHandler(svc, nil, locks)
	app.Post("/webhooks/sciener", handler.LockRecord)

	return &webhookFixture{app: app, svc: svc, lock: lock}
}

func (f *webhookFixture) post(t *testing.T, payload LockRecordPayload) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sciener", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func TestWebhookProcessesUnlock(t *testing.T) {
	f := newWebhookFixture(t)

	issued, err := f.svc.Issue(context.Background(), services.IssueRequest{
		UserID: 1, LockID: f.lock.ID, PinType: models.PinTypeEntry,
	})
	require.NoError(t, err)

	status, body := f.post(t, LockRecordPayload{
		LockID:      42,
		KeyboardPwd: issued.Pin,
		RecordType:  recordTypeUnlockByPin,
		Date:        issued.IssuedAt.Add(time.Minute).UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, issued.ID.String(), body["id"])

	current, err := f.svc.CurrentLog(context.Background(), 1, nil)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, models.StatusEntered, current.Status)
}

func TestWebhookIgnoresOtherRecordTypes(t *testing.T) {
	f := newWebhookFixture(t)

	// recordType 1 is an app unlock; acknowledged but never processed
	status, body := f.post(t, LockRecordPayload{
		LockID:      42,
		KeyboardPwd: "123456",
		RecordType:  1,
		Date:        time.Now().UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ignored", body["status"])
}

func TestWebhookUnknownPinIsOK(t *testing.T) {
	f := newWebhookFixture(t)

	// A PIN this service never issued must not cause vendor retries
	status, body := f.post(t, LockRecordPayload{
		LockID:      42,
		KeyboardPwd: "999999",
		RecordType:  recordTypeUnlockByPin,
		Date:        time.Now().UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_match", body["status"])
}

func TestWebhookUnknownLockIsOK(t *testing.T) {
	f := newWebhookFixture(t)

	status, body := f.post(t, LockRecordPayload{
		LockID:      9999,
		KeyboardPwd: "123456",
		RecordType:  recordTypeUnlockByPin,
		Date:        time.Now().UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_match", body["status"])
}

func TestWebhookDuplicateDeliveryIsOK(t *testing.T) {
	f := newWebhookFixture(t)

	issued, err := f.svc.Issue(context.Background(), services.IssueRequest{
		UserID: 1, LockID: f.lock.ID, PinType: models.PinTypeEntry,
	})
	require.NoError(t, err)

	payload := LockRecordPayload{
		LockID:      42,
		KeyboardPwd: issued.Pin,
		RecordType:  recordTypeUnlockByPin,
		Date:        issued.IssuedAt.Add(time.Minute).UnixMilli(),
	}

	status, body := f.post(t, payload)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "processed", body["status"])

	// Redelivery is a no-op, still 200
	status, body = f.post(t, payload)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_match", body["status"])
}

func TestWebhookExpiredPinIsAnomalous(t *testing.T) {
	f := newWebhookFixture(t)

	issued, err := f.svc.Issue(context.Background(), services.IssueRequest{
		UserID: 1, LockID: f.lock.ID, PinType: models.PinTypeEntry,
	})
	require.NoError(t, err)

	status, body := f.post(t, LockRecordPayload{
		LockID:      42,
		KeyboardPwd: issued.Pin,
		RecordType:  recordTypeUnlockByPin,
		Date:        issued.ExpiresAt.Add(time.Minute).UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anomalous", body["status"])

	// The record did not advance
	current, err := f.svc.CurrentLog(context.Background(), 1, nil)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, models.StatusIssued, current.Status)
}

func TestWebhookExitFlow(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	entry, err := f.svc.Issue(ctx, services.IssueRequest{
		UserID: 1, LockID: f.lock.ID, PinType: models.PinTypeEntry,
	})
	require.NoError(t, err)
	f.post(t, LockRecordPayload{
		LockID: 42, KeyboardPwd: entry.Pin, RecordType: recordTypeUnlockByPin,
		Date: entry.IssuedAt.Add(time.Minute).UnixMilli(),
	})

	exit, err := f.svc.Issue(ctx, services.IssueRequest{
		UserID: 1, LockID: f.lock.ID, PinType: models.PinTypeExit,
	})
	require.NoError(t, err)
	status, body := f.post(t, LockRecordPayload{
		LockID: 42, KeyboardPwd: exit.Pin, RecordType: recordTypeUnlockByPin,
		Date: exit.IssuedAt.Add(time.Minute).UnixMilli(),
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "processed", body["status"])

	logs, err := f.svc.RecentLogs(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	statuses := map[string]bool{}
	for _, l := range logs {
		statuses[l.Status] = true
	}
	assert.True(t, statuses[models.StatusEntered], "entry record stays entered")
	assert.True(t, statuses[models.StatusExited], "exit record reaches exited")
}
