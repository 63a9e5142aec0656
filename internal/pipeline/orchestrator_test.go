package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-studio-backend/internal/classifier"
	"dealer-studio-backend/internal/generator"
	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/store"
)

type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, img models.Image) classifier.Classification
}

func (m *mockClassifier) Classify(ctx context.Context, img models.Image) classifier.Classification {
	if m.ClassifyFunc == nil {
		return classifier.Classification{Category: models.CategoryExterior, Fallback: true}
	}
	return m.ClassifyFunc(ctx, img)
}

type mockGenerator struct {
	mu           sync.Mutex
	requests     []generator.Request
	GenerateFunc func(ctx context.Context, req generator.Request) (models.Image, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req generator.Request) (models.Image, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GenerateFunc == nil {
		return models.Image{MimeType: "image/png", Data: []byte("studio shot")}, nil
	}
	return m.GenerateFunc(ctx, req)
}

func (m *mockGenerator) Requests() []generator.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generator.Request(nil), m.requests...)
}

type mockPlates struct {
	PlateFunc func(ctx context.Context, studioID string) (models.Image, error)
}

func (m *mockPlates) Plate(ctx context.Context, studioID string) (models.Image, error) {
	if m.PlateFunc == nil {
		return models.Image{MimeType: "image/png", Data: []byte("plate:" + studioID)}, nil
	}
	return m.PlateFunc(ctx, studioID)
}

type fixture struct {
	store *store.Store
	cls   *mockClassifier
	gen   *mockGenerator
	plate *mockPlates
	orch  *pipeline.Orchestrator
}

func newFixture(opts pipeline.Options) *fixture {
	f := &fixture{
		store: store.New(store.Options{}),
		cls:   &mockClassifier{},
		gen:   &mockGenerator{},
		plate: &mockPlates{},
	}
	f.orch = pipeline.New(f.store, f.cls, f.gen, f.plate, opts)
	return f
}

func (f *fixture) order(t *testing.T, task models.TaskType, jobs ...store.NewJob) (models.Order, []models.ProcessingJob) {
	t.Helper()
	order, err := f.store.CreateOrder("Test order", task, "studio-01")
	require.NoError(t, err)
	added, err := f.store.AttachJobs(order.ID, jobs)
	require.NoError(t, err)
	return order, added
}

func img(name string) models.Image {
	return models.Image{MimeType: "image/jpeg", Data: []byte(name)}
}

func drain(t *testing.T, events <-chan pipeline.Event) []pipeline.Event {
	t.Helper()
	done := make(chan []pipeline.Event, 1)
	go func() { done <- pipeline.Drain(events) }()
	select {
	case out := <-done:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func eventsOfType(events []pipeline.Event, typ pipeline.EventType) []pipeline.Event {
	var out []pipeline.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_MixedBatch(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.cls.ClassifyFunc = func(_ context.Context, img models.Image) classifier.Classification {
		return classifier.Classification{Category: models.CategoryInterior, Confidence: 0.93}
	}
	f.gen.GenerateFunc = func(_ context.Context, req generator.Request) (models.Image, error) {
		if string(req.Original.Data) == "rear" {
			return models.Image{}, &generator.GenerationError{Model: "m", FinishReason: "SAFETY"}
		}
		return models.Image{MimeType: "image/png", Data: []byte("out-" + string(req.Original.Data))}, nil
	}

	order, jobs := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("front"), Angle: models.AngleFront},
		store.NewJob{Image: img("cabin")},
		store.NewJob{Image: img("rear"), Angle: models.AngleRear},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	all := drain(t, events)

	last := all[len(all)-1]
	assert.Equal(t, pipeline.EventBatchComplete, last.Type)
	assert.Equal(t, 3, last.Processed)
	assert.Equal(t, 3, last.Total)
	assert.False(t, last.Cancelled)

	require.Len(t, eventsOfType(all, pipeline.EventJobCompleted), 2)
	failed := eventsOfType(all, pipeline.EventJobFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, jobs[2].ID, failed[0].JobID)

	got, err := f.store.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)

	assert.Equal(t, models.JobStatusCompleted, got.Jobs[0].Status)
	assert.Equal(t, models.CategoryExterior, got.Jobs[0].Category)
	assert.Equal(t, "out-front", string(got.Jobs[0].ProcessedImage.Data))

	assert.Equal(t, models.JobStatusCompleted, got.Jobs[1].Status)
	assert.Equal(t, models.CategoryInterior, got.Jobs[1].Category)
	assert.Equal(t, models.AngleInterior, got.Jobs[1].Angle)

	assert.Equal(t, models.JobStatusFailed, got.Jobs[2].Status)
	assert.Nil(t, got.Jobs[2].ProcessedImage)
	assert.Contains(t, got.Jobs[2].Error, "SAFETY")

	progress, err := f.store.Progress(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunDrained, progress.State)
	assert.Equal(t, 100, progress.Percent())
	assert.Empty(t, progress.CurrentJobID)
	assert.Contains(t, progress.Logs[len(progress.Logs)-1].Message, "2 of 3")
}

func TestRun_ProcessesInListOrder(t *testing.T) {
	f := newFixture(pipeline.Options{})
	order, _ := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("a"), Angle: models.AngleFront},
		store.NewJob{Image: img("b"), Angle: models.AngleLeft},
		store.NewJob{Image: img("c"), Angle: models.AngleRight},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	var seen []string
	for _, req := range f.gen.Requests() {
		seen = append(seen, string(req.Original.Data))
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRun_EventCountersNeverDecrease(t *testing.T) {
	f := newFixture(pipeline.Options{})
	order, _ := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("a")},
		store.NewJob{Image: img("b")},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)

	prev := 0
	for _, ev := range drain(t, events) {
		assert.GreaterOrEqual(t, ev.Processed, prev)
		assert.Equal(t, 2, ev.Total)
		prev = ev.Processed
	}
}

func TestRun_TaggedJobsSkipClassifier(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.cls.ClassifyFunc = func(context.Context, models.Image) classifier.Classification {
		t.Error("tagged jobs must not be classified")
		return classifier.Classification{}
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("engine"), Angle: models.AngleHoodOpen},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	reqs := f.gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instruction, "OPEN HOOD")
}

func TestRun_RoutesDetailUploads(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.cls.ClassifyFunc = func(context.Context, models.Image) classifier.Classification {
		return classifier.Classification{Category: models.CategoryDetail, Confidence: 0.8}
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement, store.NewJob{Image: img("wheel")})

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	reqs := f.gen.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].ReferencePlate)
	assert.Equal(t, "plate:studio-01", string(reqs[0].ReferencePlate.Data))
	assert.Contains(t, reqs[0].Instruction, "Detail shot")
	assert.Nil(t, reqs[0].Logo)
}

func TestRun_InteriorTaskOverridesCategory(t *testing.T) {
	f := newFixture(pipeline.Options{})
	order, _ := f.order(t, models.TaskInteriorEnhancement,
		store.NewJob{Image: img("front"), Angle: models.AngleFront},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	reqs := f.gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instruction, "Interior enhancement")
}

func TestRun_BrandingSnapshot(t *testing.T) {
	f := newFixture(pipeline.Options{})
	logo := img("logo")
	f.store.SetBranding(models.Branding{Logo: &logo, Enabled: true})
	order, _ := f.order(t, models.TaskBackgroundReplacement, store.NewJob{Image: img("a"), Angle: models.AngleFront})

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	reqs := f.gen.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Logo)
	assert.Equal(t, "logo", string(reqs[0].Logo.Data))
	assert.Contains(t, reqs[0].Instruction, "BRANDING")
}

func TestRun_ConcurrentRunRejected(t *testing.T) {
	f := newFixture(pipeline.Options{})
	release := make(chan struct{})
	f.gen.GenerateFunc = func(ctx context.Context, req generator.Request) (models.Image, error) {
		<-release
		return img("out"), nil
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement, store.NewJob{Image: img("a"), Angle: models.AngleFront})

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, f.orch.Running(order.ID))

	_, err = f.orch.Run(context.Background(), order.ID)
	assert.ErrorIs(t, err, store.ErrRunInProgress)

	close(release)
	drain(t, events)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Jobs[0].Status)
}

func TestRun_NoPendingJobs(t *testing.T) {
	f := newFixture(pipeline.Options{})
	order, err := f.store.CreateOrder("", models.TaskBackgroundReplacement, "studio-01")
	require.NoError(t, err)

	_, err = f.orch.Run(context.Background(), order.ID)
	assert.ErrorIs(t, err, store.ErrNoPendingJobs)
}

func TestCancel_FinishesInFlightJob(t *testing.T) {
	f := newFixture(pipeline.Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	f.gen.GenerateFunc = func(ctx context.Context, req generator.Request) (models.Image, error) {
		calls++
		if calls == 1 {
			close(started)
			<-release
			if ctx.Err() != nil {
				return models.Image{}, ctx.Err()
			}
		}
		return img("out"), nil
	}
	order, jobs := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("a"), Angle: models.AngleFront},
		store.NewJob{Image: img("b"), Angle: models.AngleRear},
		store.NewJob{Image: img("c"), Angle: models.AngleLeft},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)

	<-started
	assert.True(t, f.orch.Cancel(order.ID))
	close(release)
	all := drain(t, events)

	last := all[len(all)-1]
	assert.Equal(t, pipeline.EventBatchComplete, last.Type)
	assert.True(t, last.Cancelled)
	assert.Equal(t, 1, last.Processed)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Jobs[0].Status)
	assert.Equal(t, models.JobStatusPending, got.Jobs[1].Status)
	assert.Equal(t, models.JobStatusPending, got.Jobs[2].Status)

	progress, _ := f.store.Progress(order.ID)
	assert.True(t, progress.Cancelled)
	assert.False(t, f.orch.Cancel(order.ID))

	// the remaining jobs run on the next batch
	events, err = f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)
	got, _ = f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Jobs[2].Status)
	assert.Equal(t, jobs[2].ID, got.Jobs[2].ID)
}

func TestRun_GenerateTimeout(t *testing.T) {
	f := newFixture(pipeline.Options{GenerateTimeout: 20 * time.Millisecond})
	f.gen.GenerateFunc = func(ctx context.Context, req generator.Request) (models.Image, error) {
		if string(req.Original.Data) == "slow" {
			<-ctx.Done()
			return models.Image{}, &generator.GenerationError{Model: "m", Err: ctx.Err()}
		}
		return img("out"), nil
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("slow"), Angle: models.AngleFront},
		store.NewJob{Image: img("fast"), Angle: models.AngleRear},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusFailed, got.Jobs[0].Status)
	assert.Contains(t, got.Jobs[0].Error, "timed out")
	assert.Equal(t, models.JobStatusCompleted, got.Jobs[1].Status)
}

func TestRun_PanicFailsOnlyThatJob(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.gen.GenerateFunc = func(ctx context.Context, req generator.Request) (models.Image, error) {
		if string(req.Original.Data) == "boom" {
			panic("decoder exploded")
		}
		return img("out"), nil
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement,
		store.NewJob{Image: img("boom"), Angle: models.AngleFront},
		store.NewJob{Image: img("fine"), Angle: models.AngleRear},
	)

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusFailed, got.Jobs[0].Status)
	assert.Contains(t, got.Jobs[0].Error, "decoder exploded")
	assert.Equal(t, models.JobStatusCompleted, got.Jobs[1].Status)
}

func TestRun_PlateFailureFailsJob(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.plate.PlateFunc = func(context.Context, string) (models.Image, error) {
		return models.Image{}, errors.New("bucket offline")
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement, store.NewJob{Image: img("a"), Angle: models.AngleFront})

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	all := drain(t, events)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusFailed, got.Jobs[0].Status)
	assert.Contains(t, got.Jobs[0].Error, "bucket offline")
	assert.Empty(t, f.gen.Requests())
	assert.Equal(t, models.OrderStatusActive, got.Status)

	var errorLogs int
	for _, ev := range eventsOfType(all, pipeline.EventLog) {
		if ev.Log.Error {
			errorLogs++
			assert.True(t, strings.HasPrefix(ev.Log.Message, "[ERROR]"))
		}
	}
	assert.Equal(t, 1, errorLogs)
}

func TestRun_EmptyOutputFailsJob(t *testing.T) {
	f := newFixture(pipeline.Options{})
	f.gen.GenerateFunc = func(context.Context, generator.Request) (models.Image, error) {
		return models.Image{}, nil
	}
	order, _ := f.order(t, models.TaskBackgroundReplacement, store.NewJob{Image: img("a"), Angle: models.AngleFront})

	events, err := f.orch.Run(context.Background(), order.ID)
	require.NoError(t, err)
	drain(t, events)

	got, _ := f.store.GetOrder(order.ID)
	assert.Equal(t, models.JobStatusFailed, got.Jobs[0].Status)
	assert.Nil(t, got.Jobs[0].ProcessedImage)
}
