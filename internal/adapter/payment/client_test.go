package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/coffee-order/internal/adapter/resilience"
	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

// Mock Locker
type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (m *memLocker) TryAcquire(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	m.held[key] = token
	return token, true, nil
}

func (m *memLocker) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.released = append(m.released, key)
	return nil
}

type gateway struct {
	srv    *httptest.Server
	calls  atomic.Int32
	mu     sync.Mutex
	bodies []map[string]any
}

func newGateway(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *gateway {
	g := &gateway{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.calls.Add(1)
		assert.Equal(t, paymentPath, r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.bodies = append(g.bodies, body)
		g.mu.Unlock()
		handler(w, body)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func testPolicy() *resilience.Policy {
	s := resilience.DefaultSettings("payment")
	s.BaseDelay = time.Millisecond
	s.MaxDelay = 2 * time.Millisecond
	s.Timeout = time.Second
	return resilience.NewPolicy(s, nil)
}

func chargeFor(orderID uuid.UUID) port.ChargeRequest {
	return port.ChargeRequest{OrderID: orderID, Amount: domain.MustMoney("20.00", "USD"), UserID: "user-1"}
}

func TestCharge_Success(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"transaction_id":"gw-123"}`))
	})
	locker := newMemLocker()
	client := NewClient(g.srv.URL+"/", g.srv.Client(), testPolicy(), locker, nil)
	orderID := uuid.New()

	res, err := client.Charge(context.Background(), chargeFor(orderID))
	require.NoError(t, err)
	assert.Equal(t, "gw-123", res.TransactionID)

	require.Len(t, g.bodies, 1)
	assert.Equal(t, "20", g.bodies[0]["value"])
	assert.Equal(t, "USD", g.bodies[0]["currency"])
	assert.Equal(t, orderID.String(), g.bodies[0]["order_id"])
	assert.Equal(t, "user-1", g.bodies[0]["user_id"])
	assert.Equal(t, []string{"payment:lock:" + orderID.String()}, locker.released)
}

func TestCharge_MintsTransactionIDWhenGatewayOmitsIt(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`accepted`))
	})
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), newMemLocker(), nil)

	res, err := client.Charge(context.Background(), chargeFor(uuid.New()))
	require.NoError(t, err)
	_, err = uuid.Parse(res.TransactionID)
	assert.NoError(t, err)
}

func TestCharge_LockHeldSkipsGateway(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {})
	locker := newMemLocker()
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), locker, nil)
	orderID := uuid.New()
	locker.held["payment:lock:"+orderID.String()] = "other-holder"

	_, err := client.Charge(context.Background(), chargeFor(orderID))
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.ErrorIs(t, err, domain.ErrBusinessRule)
	assert.Equal(t, "payment is already being processed for this order", err.Error())
	assert.Zero(t, g.calls.Load())
	assert.Empty(t, locker.released)
}

func TestCharge_LockProviderFailure(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {})
	locker := newMemLocker()
	locker.err = errors.New("redis: connection refused")
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), locker, nil)

	_, err := client.Charge(context.Background(), chargeFor(uuid.New()))
	assert.ErrorIs(t, err, domain.ErrExternalFailure)
	assert.Zero(t, g.calls.Load())
}

func TestCharge_DeclinedAfterRetriesReleasesLock(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`insufficient funds`))
	})
	locker := newMemLocker()
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), locker, nil)
	orderID := uuid.New()

	_, err := client.Charge(context.Background(), chargeFor(orderID))
	assert.ErrorIs(t, err, domain.ErrExternalFailure)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Equal(t, int32(4), g.calls.Load())
	assert.Equal(t, []string{"payment:lock:" + orderID.String()}, locker.released)
}

func TestCharge_ConcurrentSameOrderChargesOnce(t *testing.T) {
	release := make(chan struct{})
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {
		<-release
		_, _ = w.Write([]byte(`{"transaction_id":"gw-1"}`))
	})
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), newMemLocker(), nil)
	orderID := uuid.New()

	first := make(chan error, 1)
	go func() {
		_, err := client.Charge(context.Background(), chargeFor(orderID))
		first <- err
	}()
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := client.Charge(context.Background(), chargeFor(orderID))
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestRefund_PostsNegativeAmountWithoutLock(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"transaction_id":"rf-1"}`))
	})
	locker := newMemLocker()
	locker.err = errors.New("lock must not be used")
	client := NewClient(g.srv.URL, g.srv.Client(), testPolicy(), locker, nil)

	res, err := client.Refund(context.Background(), port.RefundRequest{
		TransactionID: "gw-123",
		Amount:        domain.MustMoney("20.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, "rf-1", res.TransactionID)
	require.Len(t, g.bodies, 1)
	assert.Equal(t, "-20", g.bodies[0]["value"])
	assert.Equal(t, "gw-123", g.bodies[0]["original_transaction_id"])
}
