package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/coffee-order/internal/adapter/payment"
	"github.com/rl1809/coffee-order/internal/adapter/resilience"
	"github.com/rl1809/coffee-order/internal/adapter/storage"
	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

// Fires concurrent charges for the same order at a stub gateway and checks
// the payment lock lets exactly one through.
func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	totalRequests := flag.Int("requests", 50, "concurrent charges for the same order")
	gatewayDelay := flag.Duration("gateway-delay", 200*time.Millisecond, "stub gateway latency")
	flag.Parse()

	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	var gatewayCalls atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayCalls.Add(1)
		time.Sleep(*gatewayDelay)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"transaction_id":%q}`, uuid.NewString())
	}))
	defer gateway.Close()

	policy := resilience.NewPolicy(resilience.DefaultSettings("payment"), nil)
	client := payment.NewClient(gateway.URL, gateway.Client(), policy, storage.NewRedisLocker(rdb), nil)

	req := port.ChargeRequest{
		OrderID: uuid.New(),
		Amount:  domain.MustMoney("4.00", domain.DefaultCurrency),
		UserID:  "stress-user",
	}

	// Counters
	var successCount, lockedCount, failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := client.Charge(ctx, req)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, payment.ErrPaymentInProgress):
				lockedCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("charge failed: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	fmt.Println("========== DUPLICATE CHARGE DRILL ==========")
	fmt.Printf("Order:            %s\n", req.OrderID)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Charged:          %d\n", successCount.Load())
	fmt.Printf("Rejected (lock):  %d\n", lockedCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Gateway Calls:    %d\n", gatewayCalls.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("============================================")

	// Assertions
	if successCount.Load() == 1 && gatewayCalls.Load() == 1 {
		fmt.Println("PASS: exactly one charge reached the gateway")
	} else {
		fmt.Printf("FAIL: expected 1 charge and 1 gateway call, got %d/%d\n",
			successCount.Load(), gatewayCalls.Load())
	}

	// The lock must be gone once the charge settles
	exists, _ := rdb.Exists(ctx, "payment:lock:"+req.OrderID.String()).Result()
	if exists == 0 {
		fmt.Println("PASS: payment lock released")
	} else {
		fmt.Println("FAIL: payment lock still held")
	}
}
