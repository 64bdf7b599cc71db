package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"supplychain-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	require.NoError(t, err)
	return raw
}

func TestApplyOrderEvents(t *testing.T) {
	s := NewStore("http://localhost:5000", nil, testLogger())

	require.NoError(t, s.Apply(frame(t, "order-created", models.Order{ID: 1, OrderID: "ORD-A"})))
	require.NoError(t, s.Apply(frame(t, "order-created", models.Order{ID: 2, OrderID: "ORD-B"})))

	orders := s.Orders()
	require.Len(t, orders, 2)
	// Newest first.
	assert.EqualValues(t, 2, orders[0].ID)
	assert.EqualValues(t, 1, orders[1].ID)

	// Update replaces in place.
	require.NoError(t, s.Apply(frame(t, "order-updated", models.Order{ID: 1, OrderID: "ORD-A", Quantity: 9})))
	orders = s.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, 9, orders[1].Quantity)

	// Update for an unseen order (missed create) is prepended.
	require.NoError(t, s.Apply(frame(t, "order-updated", models.Order{ID: 3, OrderID: "ORD-C"})))
	orders = s.Orders()
	require.Len(t, orders, 3)
	assert.EqualValues(t, 3, orders[0].ID)

	require.NoError(t, s.Apply(frame(t, "order-deleted", map[string]uint{"id": 2})))
	orders = s.Orders()
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.NotEqualValues(t, 2, o.ID)
	}

	// Deleting an unknown id is a no-op.
	require.NoError(t, s.Apply(frame(t, "order-deleted", map[string]uint{"id": 99})))
	assert.Len(t, s.Orders(), 2)
}

func TestApplyStockEvents(t *testing.T) {
	s := NewStore("http://localhost:5000", nil, testLogger())

	upsert := func(productType, productSubtype string, quantity int) []byte {
		return frame(t, "stock-updated", map[string]any{
			"productType":    productType,
			"productSubtype": productSubtype,
			"newStock":       quantity,
		})
	}

	require.NoError(t, s.Apply(upsert("Wig", "Straight", 10)))
	require.NoError(t, s.Apply(upsert("Wig", "Curly", 4)))
	require.NoError(t, s.Apply(upsert("Wig", "Straight", 7)))

	assert.Equal(t, map[string]map[string]int{
		"Wig": {"Straight": 7, "Curly": 4},
	}, s.Stock())

	// Null newStock removes the subtype.
	require.NoError(t, s.Apply(frame(t, "stock-updated", map[string]any{
		"productType":    "Wig",
		"productSubtype": "Curly",
		"newStock":       nil,
	})))
	assert.Equal(t, map[string]map[string]int{"Wig": {"Straight": 7}}, s.Stock())

	// Removing the last subtype drops the parent type too.
	require.NoError(t, s.Apply(frame(t, "stock-updated", map[string]any{
		"productType":    "Wig",
		"productSubtype": "Straight",
		"newStock":       nil,
	})))
	assert.Empty(t, s.Stock())

	require.NoError(t, s.Apply(upsert("Extension", "Clip", 3)))
	require.NoError(t, s.Apply(frame(t, "stock-deleted", map[string]string{"productType": "Extension"})))
	assert.Empty(t, s.Stock())
}

func TestApplyIgnoresUnknownEvents(t *testing.T) {
	s := NewStore("http://localhost:5000", nil, testLogger())
	require.NoError(t, s.Apply(frame(t, "something-new", map[string]int{"x": 1})))
	assert.Empty(t, s.Orders())
}

func TestFetchDebounce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"orderId":"ORD-A"}]`))
	}))
	defer srv.Close()

	s := NewStore(srv.URL, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, s.FetchOrders(ctx, false))
	require.NoError(t, s.FetchOrders(ctx, false)) // inside freshness window, skipped
	assert.EqualValues(t, 1, hits.Load())

	require.NoError(t, s.FetchOrders(ctx, true)) // forced
	assert.EqualValues(t, 2, hits.Load())

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-A", orders[0].OrderID)
}

func TestRunPausesBeforeRedialAfterDrop(t *testing.T) {
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ws":
			dials.Add(1)
			// Accept and immediately drop the connection.
			if c, err := upgrader.Upgrade(w, r, nil); err == nil {
				c.Close()
			}
		case ordersPath:
			w.Write([]byte(`[]`))
		case stockPath:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	s := NewStore(srv.URL, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Each dropped connection is followed by at least the base reconnect
	// pause, so 2.5s admits only a handful of dials, not a tight loop.
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
	assert.LessOrEqual(t, dials.Load(), int32(4))
}

func TestCacheRoundTripAndBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")

	cache, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put(ordersPath, []byte(`[{"id":7,"orderId":"ORD-Z"}]`)))
	require.NoError(t, cache.Put(stockPath, []byte(`{"Wig":{"Straight":5}}`)))
	require.NoError(t, cache.Close())

	cache, err = OpenCache(path)
	require.NoError(t, err)
	defer cache.Close()

	missing, err := cache.Get("/api/unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// A fresh store hydrates from the snapshot before any fetch.
	s := NewStore("http://localhost:5000", cache, testLogger())
	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-Z", orders[0].OrderID)
	assert.Equal(t, map[string]map[string]int{"Wig": {"Straight": 5}}, s.Stock())
}

func TestFetchPersistsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Wig":{"Straight":9}}`))
	}))
	defer srv.Close()

	cache, err := OpenCache(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer cache.Close()

	s := NewStore(srv.URL, cache, testLogger())
	require.NoError(t, s.FetchStock(context.Background(), true))

	raw, err := cache.Get(stockPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Wig":{"Straight":9}}`, string(raw))
}
