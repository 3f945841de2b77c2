package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenderscan/pncp-aggregator/pkg/pagination"
	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// stubPartitionFetcher serves canned per-modality results and tracks
// concurrency.
type stubPartitionFetcher struct {
	mu      sync.Mutex
	results map[int]pagination.PartitionResult
	errs    map[int]error
	called  []int

	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (s *stubPartitionFetcher) FetchPartition(ctx context.Context, q pncp.Query, modality int) (pagination.PartitionResult, error) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	atomic.AddInt32(&s.inFlight, -1)

	s.mu.Lock()
	s.called = append(s.called, modality)
	s.mu.Unlock()

	if err, ok := s.errs[modality]; ok {
		return pagination.PartitionResult{}, err
	}
	return s.results[modality], nil
}

func notice(id string) pncp.RawNotice {
	var n pncp.RawNotice
	n.ControlNumber = id
	return n
}

func newTestAggregator(f PartitionFetcher, concurrency int) *Aggregator {
	return New(f, Config{MaxConcurrency: concurrency}, zerolog.Nop())
}

func TestAggregate_PartialFailure(t *testing.T) {
	// Partition B (modality 6) fails; A (4) and C (8) succeed. The result
	// must contain A's and C's records and exactly one partition error.
	stub := &stubPartitionFetcher{
		results: map[int]pagination.PartitionResult{
			4: {Records: []pncp.RawNotice{notice("a1"), notice("a2")}, TotalRecords: 2},
			8: {Records: []pncp.RawNotice{notice("c1")}, TotalRecords: 1},
		},
		errs: map[int]error{
			6: errors.New("partition down"),
		},
	}

	got := newTestAggregator(stub, 2).Aggregate(context.Background(), pncp.Query{}, []int{4, 6, 8})

	if len(got.Records) != 3 {
		t.Errorf("records = %d, want 3 from the surviving partitions", len(got.Records))
	}
	if len(got.PartitionErrors) != 1 {
		t.Fatalf("partition errors = %d, want exactly 1", len(got.PartitionErrors))
	}
	if got.PartitionErrors[0].Modality != 6 {
		t.Errorf("failed modality = %d, want 6", got.PartitionErrors[0].Modality)
	}
	if !got.Partial() {
		t.Error("Partial() = false, want true with a failed partition")
	}
	if got.TotalApprox != 3 {
		t.Errorf("TotalApprox = %d, want 3 (failed partition contributes nothing)", got.TotalApprox)
	}
}

func TestAggregate_AllPartitionsFailStillReturns(t *testing.T) {
	stub := &stubPartitionFetcher{
		errs: map[int]error{
			4: errors.New("down"),
			6: errors.New("down"),
		},
	}

	got := newTestAggregator(stub, 2).Aggregate(context.Background(), pncp.Query{}, []int{4, 6})

	if len(got.PartitionErrors) != 2 {
		t.Errorf("partition errors = %d, want 2", len(got.PartitionErrors))
	}
	if len(got.Records) != 0 || got.TotalApprox != 0 {
		t.Errorf("result = %+v, want empty best-effort result", got)
	}
}

func TestAggregate_SumsPartitionTotals(t *testing.T) {
	stub := &stubPartitionFetcher{
		results: map[int]pagination.PartitionResult{
			6: {TotalRecords: 120},
			8: {TotalRecords: 30, Capped: true},
		},
	}

	got := newTestAggregator(stub, 2).Aggregate(context.Background(), pncp.Query{}, []int{6, 8})

	if got.TotalApprox != 150 {
		t.Errorf("TotalApprox = %d, want 150", got.TotalApprox)
	}
	if !got.Capped {
		t.Error("Capped = false, want true when any partition was capped")
	}
}

func TestAggregate_BoundedConcurrency(t *testing.T) {
	stub := &stubPartitionFetcher{delay: 20 * time.Millisecond}

	newTestAggregator(stub, 3).Aggregate(context.Background(), pncp.Query{}, []int{1, 2, 3, 4, 5, 6, 7, 8})

	if max := atomic.LoadInt32(&stub.maxInFlight); max > 3 {
		t.Errorf("max in-flight partitions = %d, want <= 3", max)
	}
	if len(stub.called) != 8 {
		t.Errorf("partitions fetched = %d, want 8", len(stub.called))
	}
}

func TestAggregate_EmptyModalityListExpandsToAll(t *testing.T) {
	stub := &stubPartitionFetcher{}

	newTestAggregator(stub, 4).Aggregate(context.Background(), pncp.Query{}, nil)

	if len(stub.called) != len(pncp.AllModalities()) {
		t.Errorf("partitions fetched = %d, want all %d known modalities", len(stub.called), len(pncp.AllModalities()))
	}
}

func TestAggregate_PartitionErrorsSorted(t *testing.T) {
	stub := &stubPartitionFetcher{
		errs: map[int]error{
			9: errors.New("down"),
			2: errors.New("down"),
			6: errors.New("down"),
		},
	}

	got := newTestAggregator(stub, 3).Aggregate(context.Background(), pncp.Query{}, []int{9, 2, 6})

	want := []int{2, 6, 9}
	for i, pe := range got.PartitionErrors {
		if pe.Modality != want[i] {
			t.Errorf("PartitionErrors[%d].Modality = %d, want %d", i, pe.Modality, want[i])
		}
	}
}
