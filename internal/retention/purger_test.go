package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linemon-backend/config"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakeStore) PurgeMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPurger_Purge(t *testing.T) {
	s := &fakeStore{}
	p := NewPurger(config.RetentionConfig{Days: 30}, s)
	p.now = func() time.Time { return time.Date(2025, 3, 31, 3, 30, 0, 0, time.UTC) }

	n, err := p.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, s.cutoffs, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 3, 30, 0, 0, time.UTC), s.cutoffs[0])
}

func TestPurger_PurgeError(t *testing.T) {
	s := &fakeStore{err: errors.New("locked")}
	p := NewPurger(config.RetentionConfig{Days: 1}, s)

	_, err := p.Purge(context.Background())
	assert.ErrorContains(t, err, "locked")
}

func TestPurger_Start(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config.RetentionConfig
		wantErr bool
	}{
		{"disabled", config.RetentionConfig{Enabled: false, Schedule: "bogus"}, false},
		{"bad schedule", config.RetentionConfig{Enabled: true, Days: 1, Schedule: "every night"}, true},
		{"five field schedule", config.RetentionConfig{Enabled: true, Days: 1, Schedule: "30 3 * * *"}, true},
		{"zero days", config.RetentionConfig{Enabled: true, Schedule: "0 30 3 * * *"}, true},
		{"valid", config.RetentionConfig{Enabled: true, Days: 30, Schedule: "0 30 3 * * *"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			err := NewPurger(tc.cfg, &fakeStore{}).Start(ctx)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPurger_RunsOnSchedule(t *testing.T) {
	s := &fakeStore{}
	p := NewPurger(config.RetentionConfig{Enabled: true, Days: 7, Schedule: "* * * * * *"}, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))

	assert.Eventually(t, func() bool { return s.calls() > 0 }, 3*time.Second, 50*time.Millisecond)
}
