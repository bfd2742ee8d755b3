package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

func testDelivery() Delivery {
	return NewDelivery("achievement.unlocked", time.Now().UTC(), map[string]interface{}{
		"user_id":        "user1",
		"achievement_id": "first_italian",
	})
}

func newTestClient(endpoint, secret string) *Client {
	cfg := DefaultClientConfig(endpoint)
	cfg.Secret = secret
	cfg.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	return NewClient(cfg)
}

func TestSend_Success(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	delivery := testDelivery()

	err := client.Send(context.Background(), delivery)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, delivery.ID, gotHeaders.Get("X-Delivery-ID"))
	assert.Empty(t, gotHeaders.Get("X-Signature"), "no secret, no signature")

	var decoded Delivery
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, delivery.ID, decoded.ID)
	assert.Equal(t, "achievement.unlocked", decoded.Type)
}

func TestSend_SignsBodyWithSecret(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "topsecret")
	err := client.Send(context.Background(), testDelivery())
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(gotBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, gotSignature)
}

func TestSend_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	err := client.Send(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
}

func TestSend_ClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	err := client.Send(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.False(t, retry.IsRetryable(err))
}

func TestSend_TooManyRequestsBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	err := client.Send(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))

	// The limiter pushes the next allowed request past the Retry-After window.
	status := client.Status()
	assert.True(t, status.LastRequest.After(time.Now().Add(10*time.Second)))
}

func TestSend_ConnectionRefusedIsRetryable(t *testing.T) {
	// A closed server guarantees a transport-level failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL, "")
	err := client.Send(context.Background(), testDelivery())

	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
}

func TestNewDelivery_AssignsUniqueIDs(t *testing.T) {
	a := testDelivery()
	b := testDelivery()

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
