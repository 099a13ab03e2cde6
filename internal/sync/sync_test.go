package sync

import (
	"sync"
	"testing"

	"github.com/shiva/geomatch/internal/model"
)

func TestAddressDiffers(t *testing.T) {
	prior := &model.Client{AddressLine: "1 Main St", City: "Chicago", State: "IL", Zip: "60601"}

	cases := []struct {
		name string
		rec  Record
		want bool
	}{
		{"identical", Record{AddressLine: "1 Main St", City: "Chicago", State: "IL", Zip: "60601"}, false},
		{"address changed", Record{AddressLine: "2 Main St", City: "Chicago", State: "IL", Zip: "60601"}, true},
		{"city changed", Record{AddressLine: "1 Main St", City: "Evanston", State: "IL", Zip: "60601"}, true},
		{"zip changed", Record{AddressLine: "1 Main St", City: "Chicago", State: "IL", Zip: "60602"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := addressDiffers(prior, c.rec); got != c.want {
				t.Errorf("addressDiffers = %v, want %v", got, c.want)
			}
		})
	}
}

func TestSyncCounters_Record(t *testing.T) {
	var counters syncCounters
	counters.record("crm-1", true, nil)
	counters.record("crm-2", false, nil)
	counters.record("crm-3", false, errAlwaysFails)

	if counters.upserted != 1 {
		t.Errorf("upserted = %d, want 1", counters.upserted)
	}
	if counters.skipped != 1 {
		t.Errorf("skipped = %d, want 1", counters.skipped)
	}
	if counters.failed != 1 {
		t.Errorf("failed = %d, want 1", counters.failed)
	}
	if len(counters.errors) != 1 {
		t.Errorf("errors = %v, want len 1", counters.errors)
	}
}

var errAlwaysFails = &syncTestError{"boom"}

type syncTestError struct{ msg string }

func (e *syncTestError) Error() string { return e.msg }

// TestSyncCounters_ConcurrentRecord guards the switch from the original
// lazy-init channel mutex to sync.Mutex: concurrent calls must not race.
func TestSyncCounters_ConcurrentRecord(t *testing.T) {
	var counters syncCounters
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			counters.record("crm", i%2 == 0, nil)
		}(i)
	}
	wg.Wait()
	if counters.upserted+counters.skipped != n {
		t.Errorf("total = %d, want %d", counters.upserted+counters.skipped, n)
	}
}

