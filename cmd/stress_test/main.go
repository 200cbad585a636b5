package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/carryo/job-intake/internal/adapter/storage"
	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
	"github.com/carryo/job-intake/internal/port"
)

const (
	redisAddr     = "localhost:6379"
	customerID    = "stress-customer"
	totalRequests = 50
	queueSize     = 10
)

// countingGateway stands in for the jobs API and counts created jobs.
type countingGateway struct {
	calls atomic.Int32
}

func (g *countingGateway) CreateJob(ctx context.Context, fields []port.FormField) (*domain.Job, error) {
	n := g.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	return &domain.Job{ID: fmt.Sprintf("stress-job-%d", n), Status: domain.JobStatusPending}, nil
}

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	catalog, err := storage.LoadYAMLCatalog("")
	if err != nil {
		log.Fatalf("failed to load recycling centers: %v", err)
	}

	gateway := &countingGateway{}
	forms := service.NewJobFormService(storage.NewRedisAdapter(rdb), catalog, gateway, nil, nil, service.Options{QueueSize: queueSize})
	defer forms.Close()

	// Drain the submission queue in background
	go func() {
		for range forms.GetSubmissionQueue() {
		}
	}()

	sessionID, err := prepareSession(ctx, forms)
	if err != nil {
		log.Fatalf("failed to prepare session: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent submits of the same session
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := forms.Submit(ctx, customerID, sessionID); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()
	created := gateway.calls.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Submits:    %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", fail)
	fmt.Printf("Jobs Created:     %d\n", created)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && fail == totalRequests-1 {
		fmt.Println("PASS: Exactly one submit succeeded")
	} else {
		fmt.Printf("FAIL: Expected 1 success/%d rejected, got %d/%d\n", totalRequests-1, success, fail)
	}
	if created == 1 {
		fmt.Println("PASS: Exactly one job created")
	} else {
		fmt.Printf("FAIL: Expected 1 job created, got %d\n", created)
	}

	sess, err := forms.Get(ctx, customerID, sessionID)
	if err != nil {
		fmt.Printf("FAIL: Could not reload session: %v\n", err)
	} else if sess.State() == domain.StateSubmitted {
		fmt.Println("PASS: Session is submitted")
	} else {
		fmt.Printf("FAIL: Expected submitted session, got %s\n", sess.State())
	}
}

// prepareSession fills in a recycle job and walks it to the last step.
func prepareSession(ctx context.Context, forms *service.JobFormService) (string, error) {
	sess, err := forms.Start(ctx, customerID)
	if err != nil {
		return "", err
	}
	id := sess.ID

	pickupAt := time.Now().Add(24 * time.Hour)
	steps := [][]domain.Edit{
		{domain.SetJobType(domain.JobTypeRecycle), domain.SetTitle("Old washing machine")},
		{
			domain.SetPickupLocation(domain.Location{Address: "Rustaveli Ave 12, Tbilisi", Lat: 41.6999, Lng: 44.7966}),
			domain.SetPickupContact(domain.Contact{Name: "Stress Test", Phone: "+995 555 000 000"}),
		},
		nil,
		{
			domain.SetItemDetails("Washing machine, does not spin", "appliances", "large", "60kg"),
			domain.SetCustomerPrice(decimal.NewFromInt(40)),
			domain.SetScheduledPickup(pickupAt),
		},
	}

	for i, edits := range steps {
		if i == 2 {
			centers, err := forms.RecyclingCenters(ctx)
			if err != nil || len(centers) == 0 {
				return "", fmt.Errorf("no recycling centers: %v", err)
			}
			if _, err := forms.SelectRecyclingCenter(ctx, customerID, id, centers[0].ID); err != nil {
				return "", err
			}
		} else if _, err := forms.Update(ctx, customerID, id, edits...); err != nil {
			return "", err
		}
		if i == len(steps)-1 {
			break
		}
		if _, _, err := forms.Next(ctx, customerID, id); err != nil {
			return "", err
		}
	}
	return id, nil
}
