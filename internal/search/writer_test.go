package search

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pizza-search/internal/config"
	"github.com/sells-group/pizza-search/internal/model"
)

func TestWriter_ProcessesJobsAndDrainsOnClose(t *testing.T) {
	st := &mockStore{}
	w := NewWriter(st, config.WriterConfig{Concurrency: 2, QueueSize: 8})

	for i := 0; i < 3; i++ {
		ok := w.Enqueue(Job{
			Places: []model.Place{mkPlace(model.SourceGoogle, "g-1", "Slice", 42.37, -71.03, 4.0, 10)},
			Event:  &model.SearchEvent{Zipcode: "02128", ResultCount: 1},
		})
		assert.True(t, ok)
	}
	w.Close()

	assert.Len(t, st.upsertedPlaces(), 3)
	assert.Len(t, st.loggedEvents(), 3)
}

func TestWriter_BulkFailureFallsBackPerRecord(t *testing.T) {
	st := &mockStore{bulkErr: eris.New("postgres: copy failed")}
	w := NewWriter(st, config.WriterConfig{Concurrency: 1, QueueSize: 4})

	w.Enqueue(Job{Places: []model.Place{
		mkPlace(model.SourceGoogle, "g-1", "One", 42.37, -71.03, 4.0, 10),
		mkPlace(model.SourceGoogle, "g-2", "Two", 42.38, -71.04, 4.1, 20),
	}})
	w.Close()

	upserted := st.upsertedPlaces()
	require.Len(t, upserted, 2, "each record retried individually")
	assert.Equal(t, "g-1", upserted[0].ExternalID)
	assert.Equal(t, "g-2", upserted[1].ExternalID)
}

func TestWriter_AnalyticsFailureSwallowed(t *testing.T) {
	// A store with no bulk error but a failing analytics write: the job
	// still completes and the places land.
	st := &mockStore{}
	w := NewWriter(st, config.WriterConfig{Concurrency: 1, QueueSize: 4})

	w.Enqueue(Job{
		Places: []model.Place{mkPlace(model.SourceYelp, "y-1", "Slice", 42.37, -71.03, 4.0, 10)},
		Event:  nil,
	})
	w.Close()

	assert.Len(t, st.upsertedPlaces(), 1)
	assert.Empty(t, st.loggedEvents())
}

func TestWriter_FullQueueDropsWithoutBlocking(t *testing.T) {
	st := &mockStore{
		bulkStart: make(chan struct{}, 4),
		bulkBlock: make(chan struct{}),
	}
	w := NewWriter(st, config.WriterConfig{Concurrency: 1, QueueSize: 1})

	job := Job{Places: []model.Place{mkPlace(model.SourceGoogle, "g-1", "Slice", 42.37, -71.03, 4.0, 10)}}

	// First job occupies the worker.
	require.True(t, w.Enqueue(job))
	<-st.bulkStart

	// Second fills the queue; the third must be dropped, not block.
	require.True(t, w.Enqueue(job))
	assert.False(t, w.Enqueue(job))

	close(st.bulkBlock)
	w.Close()
	assert.Len(t, st.upsertedPlaces(), 2)
}

func TestWriter_EnqueueAfterCloseDropsWithoutPanic(t *testing.T) {
	// A handler can still be mid-search when shutdown drains the writer, so
	// a late enqueue must report a drop instead of sending on the closed
	// channel.
	st := &mockStore{}
	w := NewWriter(st, config.WriterConfig{Concurrency: 1, QueueSize: 4})
	w.Close()

	ok := w.Enqueue(Job{Places: []model.Place{
		mkPlace(model.SourceGoogle, "g-1", "Slice", 42.37, -71.03, 4.0, 10),
	}})
	assert.False(t, ok)
	assert.Empty(t, st.upsertedPlaces())

	// Close is idempotent.
	w.Close()
}
