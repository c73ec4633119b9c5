package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.New()
	handler := NewHandler(nil, nil, nil)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	return r
}

func TestPutSubscription(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	r, s := setupRouter(t)
	require.NoError(t, s.EnsureEquipment(context.Background(), []string{"M1", "M2"}))

	// Endpoints are read from the raw query, undecoded.
	endpoint := "https://push.example.com/send/abc"
	target := "/api/subscriptions?endpoint=" + endpoint

	w := do(r, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint":             endpoint,
		"p256dh":               "key",
		"auth":                 "secret",
		"subscribed_equipment": []string{"m1", "M1", "m2"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SubscribedEquipment []string `json:"subscribed_equipment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"M1", "M2"}, body.SubscribedEquipment)

	w = do(r, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint":             endpoint,
		"p256dh":               "key",
		"auth":                 "secret",
		"subscribed_equipment": []string{"??"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
