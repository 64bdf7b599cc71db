package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"supplychain-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	ordersPath = "/api/orders"
	stockPath  = "/api/stock"

	// Skip a fetch if the last one landed inside this window, unless forced.
	freshness = 30 * time.Second
)

// Store is a live client-side projection of the backend: the order list and
// the nested stock map, seeded by fetch, kept current by the realtime events,
// and persisted through a Cache for offline bootstrap.
//
// All public methods are safe for concurrent use.
type Store struct {
	baseURL string
	http    *http.Client
	cache   *Cache
	log     *logrus.Logger

	mu              sync.Mutex
	orders          []models.Order
	stock           map[string]map[string]int
	ordersFetchedAt time.Time
	stockFetchedAt  time.Time
}

// NewStore builds a projection rooted at baseURL (e.g. "http://localhost:5000").
// cache may be nil to run purely in memory. Any snapshot already in the cache
// is loaded immediately so data is available before the first fetch.
func NewStore(baseURL string, cache *Cache, log *logrus.Logger) *Store {
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		log:     log,
		stock:   make(map[string]map[string]int),
	}
	s.bootstrap()
	return s
}

func (s *Store) bootstrap() {
	if s.cache == nil {
		return
	}
	if raw, err := s.cache.Get(ordersPath); err == nil && raw != nil {
		var orders []models.Order
		if json.Unmarshal(raw, &orders) == nil {
			s.orders = orders
		}
	}
	if raw, err := s.cache.Get(stockPath); err == nil && raw != nil {
		var stock map[string]map[string]int
		if json.Unmarshal(raw, &stock) == nil && stock != nil {
			s.stock = stock
		}
	}
}

// Orders returns a copy of the projected order list, newest first.
func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.orders...)
}

// Stock returns a copy of the projected productType -> productSubtype -> quantity map.
func (s *Store) Stock() map[string]map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]int, len(s.stock))
	for t, subs := range s.stock {
		inner := make(map[string]int, len(subs))
		for st, q := range subs {
			inner[st] = q
		}
		out[t] = inner
	}
	return out
}

// FetchOrders refreshes the order list from the backend. Debounced: a call
// within the freshness window of the previous success is a no-op unless
// force is set.
func (s *Store) FetchOrders(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !force && time.Since(s.ordersFetchedAt) < freshness {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	raw, err := s.get(ctx, ordersPath)
	if err != nil {
		return err
	}
	var orders []models.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return err
	}

	s.mu.Lock()
	s.orders = orders
	s.ordersFetchedAt = time.Now()
	s.mu.Unlock()

	s.persist(ordersPath, raw)
	return nil
}

// FetchStock refreshes the stock map, with the same debounce as FetchOrders.
func (s *Store) FetchStock(ctx context.Context, force bool) error {
	s.mu.Lock()
	if !force && time.Since(s.stockFetchedAt) < freshness {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	raw, err := s.get(ctx, stockPath)
	if err != nil {
		return err
	}
	var stock map[string]map[string]int
	if err := json.Unmarshal(raw, &stock); err != nil {
		return err
	}
	if stock == nil {
		stock = make(map[string]map[string]int)
	}

	s.mu.Lock()
	s.stock = stock
	s.stockFetchedAt = time.Now()
	s.mu.Unlock()

	s.persist(stockPath, raw)
	return nil
}

func (s *Store) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Store) persist(path string, raw []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(path, raw); err != nil {
		s.log.WithField("path", path).WithError(err).Warn("snapshot persist failed")
	}
}

type eventFrame struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Apply folds one realtime frame into the projection. Unknown event names are
// ignored so the client tolerates a newer server.
func (s *Store) Apply(frame []byte) error {
	var ev eventFrame
	if err := json.Unmarshal(frame, &ev); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Name {
	case "order-created", "order-updated":
		var order models.Order
		if err := json.Unmarshal(ev.Payload, &order); err != nil {
			return err
		}
		s.upsertOrder(order)

	case "order-deleted":
		var p struct {
			ID uint `json:"id"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.removeOrder(p.ID)

	case "stock-updated":
		var p struct {
			ProductType    string `json:"productType"`
			ProductSubtype string `json:"productSubtype"`
			NewStock       *int   `json:"newStock"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.applyStockUpdate(p.ProductType, p.ProductSubtype, p.NewStock)

	case "stock-deleted":
		var p struct {
			ProductType string `json:"productType"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		delete(s.stock, p.ProductType)
	}

	return nil
}

// Replace in place when the id is known, otherwise prepend: an update for an
// unseen order means we missed its create, and the payload is the full row.
func (s *Store) upsertOrder(order models.Order) {
	for i := range s.orders {
		if s.orders[i].ID == order.ID {
			s.orders[i] = order
			return
		}
	}
	s.orders = append([]models.Order{order}, s.orders...)
}

func (s *Store) removeOrder(id uint) {
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			return
		}
	}
}

func (s *Store) applyStockUpdate(productType, productSubtype string, newStock *int) {
	if newStock == nil {
		if subs, ok := s.stock[productType]; ok {
			delete(subs, productSubtype)
			if len(subs) == 0 {
				delete(s.stock, productType)
			}
		}
		return
	}
	subs, ok := s.stock[productType]
	if !ok {
		subs = make(map[string]int)
		s.stock[productType] = subs
	}
	subs[productSubtype] = *newStock
}

const (
	reconnectBase = time.Second
	reconnectCap  = 5 * time.Second
)

// Run connects to the realtime channel and applies every frame until ctx is
// cancelled, redialing with capped backoff when the connection drops. Each
// (re)connect forces a full refetch, repairing anything missed while offline.
func (s *Store) Run(ctx context.Context) error {
	wsURL := httpToWS(s.baseURL) + "/ws"
	backoff := reconnectBase

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			s.log.WithError(err).Warn("realtime dial failed")
			if err := s.waitReconnect(ctx, backoff); err != nil {
				return err
			}
			if backoff *= 2; backoff > reconnectCap {
				backoff = reconnectCap
			}
			continue
		}
		backoff = reconnectBase

		if err := s.FetchOrders(ctx, true); err != nil {
			s.log.WithError(err).Warn("order refetch failed")
		}
		if err := s.FetchStock(ctx, true); err != nil {
			s.log.WithError(err).Warn("stock refetch failed")
		}

		if err := s.readLoop(ctx, conn); err != nil {
			s.log.WithError(err).Info("realtime connection lost")
		}
		conn.Close()

		// A server that accepts and immediately drops us must not trigger a
		// tight redial/refetch loop.
		if err := s.waitReconnect(ctx, backoff); err != nil {
			return err
		}
	}
}

func (s *Store) waitReconnect(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *Store) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.Apply(frame); err != nil {
			s.log.WithError(err).Warn("could not apply realtime frame")
		}
	}
}

func httpToWS(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
