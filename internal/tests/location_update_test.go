package tests

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"courier/internal/domain"
	"courier/internal/geo"
	"courier/internal/repository"
	"courier/internal/service"
)

// ──────────────────────────────────────────────
// 1. LOCATION INGESTION
// ──────────────────────────────────────────────

func TestUpdateLocation_FlipsOfflineDriverToAvailable(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusOffline)

	result, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.DriverStatusAvailable || !result.Applied {
		t.Errorf("expected applied update with status available, got %+v", result)
	}
	if result.Sample.Source != domain.LocationSourceGPS {
		t.Errorf("expected default source gps, got %q", result.Sample.Source)
	}
	if !result.Sample.CreatedAt.Equal(baseTime) {
		t.Errorf("expected server timestamp %v, got %v", baseTime, result.Sample.CreatedAt)
	}

	driver := f.drivers.GetDriver("driver-1")
	if driver.Location == nil || *driver.Location != paris {
		t.Errorf("expected current position %v, got %v", paris, driver.Location)
	}
	if !f.index.Contains("driver-1") {
		t.Error("expected available driver to be indexed")
	}
	if f.locations.Count("driver-1") != 1 {
		t.Errorf("expected 1 sample, got %d", f.locations.Count("driver-1"))
	}
	if got := f.publisher.Events(); len(got) != 1 || got[0].DriverID != "driver-1" {
		t.Errorf("expected one location event, got %+v", got)
	}
}

func TestUpdateLocation_KeepsOnDeliveryStatusAndLeavesIndex(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusOnDelivery)
	_ = f.index.GridIndex.Upsert(context.Background(), "driver-1", eiffel)

	result, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.DriverStatusOnDelivery {
		t.Errorf("expected on_delivery to be kept, got %s", result.Status)
	}
	if f.index.Contains("driver-1") {
		t.Error("expected busy driver to be removed from the index")
	}
}

func TestUpdateLocation_InvalidCoordinates_NoSideEffects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		coords []float64
	}{
		{name: "longitude too high", coords: []float64{200, 48.8566}},
		{name: "longitude too low", coords: []float64{-180.5, 48.8566}},
		{name: "latitude too high", coords: []float64{2.3522, 91}},
		{name: "latitude too low", coords: []float64{2.3522, -90.01}},
		{name: "NaN", coords: []float64{math.NaN(), 48.8566}},
		{name: "single ordinate", coords: []float64{2.3522}},
		{name: "three ordinates", coords: []float64{2.3522, 48.8566, 35}},
		{name: "missing", coords: nil},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newTrackingFixture(service.DefaultTrackingPolicy())
			f.addDriver("driver-1", domain.DriverStatusAvailable)
			_ = f.cache.SetDriver(context.Background(), f.drivers.GetDriver("driver-1"))

			_, err := f.service.UpdateLocation(context.Background(), service.UpdateLocationRequest{
				DriverID:    "driver-1",
				Coordinates: tc.coords,
			})
			if !errors.Is(err, geo.ErrInvalidCoordinates) {
				t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
			}

			if f.drivers.SetCurrentLocationCallCount != 0 {
				t.Error("current position must not be written")
			}
			if f.locations.AppendCallCount != 0 {
				t.Error("no sample must be appended")
			}
			if f.index.UpsertCallCount != 0 || f.index.RemoveCallCount != 0 {
				t.Error("spatial index must not be touched")
			}
			if !f.cache.Has("driver-1") || f.cache.InvalidateCallCount != 0 {
				t.Error("driver cache must not change")
			}
			if len(f.publisher.Events()) != 0 {
				t.Error("no event must be published")
			}
		})
	}
}

func TestUpdateLocation_InvalidTelemetry(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*service.UpdateLocationRequest)
		wantErr error
	}{
		{
			name:    "heading above 360",
			mutate:  func(r *service.UpdateLocationRequest) { r.Heading = floatPtr(361) },
			wantErr: service.ErrInvalidTelemetry,
		},
		{
			name:    "negative battery",
			mutate:  func(r *service.UpdateLocationRequest) { r.BatteryLevel = floatPtr(-1) },
			wantErr: service.ErrInvalidTelemetry,
		},
		{
			name:    "battery above 100",
			mutate:  func(r *service.UpdateLocationRequest) { r.BatteryLevel = floatPtr(100.5) },
			wantErr: service.ErrInvalidTelemetry,
		},
		{
			name:    "unknown source",
			mutate:  func(r *service.UpdateLocationRequest) { r.Source = "satellite-phone" },
			wantErr: service.ErrInvalidLocationSource,
		},
		{
			name:    "empty driver id",
			mutate:  func(r *service.UpdateLocationRequest) { r.DriverID = "" },
			wantErr: service.ErrInvalidDriverID,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newTrackingFixture(service.DefaultTrackingPolicy())
			f.addDriver("driver-1", domain.DriverStatusAvailable)

			req := f.report("driver-1", paris)
			tc.mutate(&req)

			_, err := f.service.UpdateLocation(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if f.locations.AppendCallCount != 0 {
				t.Error("no sample must be appended")
			}
		})
	}
}

func TestUpdateLocation_StoresTelemetry(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)

	clientTime := baseTime.Add(-3 * time.Second)
	req := f.report("driver-1", paris)
	req.Speed = floatPtr(8.5)
	req.Heading = floatPtr(270)
	req.BatteryLevel = floatPtr(64)
	req.IsCharging = true
	req.Source = string(domain.LocationSourceNetwork)
	req.Timestamp = &clientTime

	result, err := f.service.UpdateLocation(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := result.Sample
	if *s.Speed != 8.5 || *s.Heading != 270 || *s.BatteryLevel != 64 || !s.IsCharging {
		t.Errorf("telemetry not stored: %+v", s)
	}
	if s.Source != domain.LocationSourceNetwork {
		t.Errorf("expected network source, got %s", s.Source)
	}
	if s.RecordedAt == nil || !s.RecordedAt.Equal(clientTime) {
		t.Errorf("expected client timestamp %v, got %v", clientTime, s.RecordedAt)
	}
}

func TestUpdateLocation_UnknownDriver(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())

	_, err := f.service.UpdateLocation(context.Background(), f.report("ghost", paris))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.locations.AppendCallCount != 0 {
		t.Error("no sample must be appended for an unknown driver")
	}
}

func TestUpdateLocation_StoreFailurePropagates(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	boom := errors.New("connection refused")
	f.locations.AppendError = boom

	_, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store failure to propagate, got %v", err)
	}
	if f.locations.TrimCallCount != 0 {
		t.Error("trim must not run after a failed append")
	}
}

// ──────────────────────────────────────────────
// 2. DELIVERY LINKAGE
// ──────────────────────────────────────────────

func TestUpdateLocation_LinksActiveDelivery(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		deliveries []*domain.Delivery
		want       string
	}{
		{
			name: "in transit delivery",
			deliveries: []*domain.Delivery{
				{ID: "delivery-1", DriverID: "driver-1", Status: domain.DeliveryStatusInTransit, CreatedAt: baseTime},
			},
			want: "delivery-1",
		},
		{
			name: "finished delivery is ignored",
			deliveries: []*domain.Delivery{
				{ID: "delivery-1", DriverID: "driver-1", Status: domain.DeliveryStatusDelivered, CreatedAt: baseTime},
			},
			want: "",
		},
		{
			name: "pending delivery is ignored",
			deliveries: []*domain.Delivery{
				{ID: "delivery-1", DriverID: "driver-1", Status: domain.DeliveryStatusPending, CreatedAt: baseTime},
			},
			want: "",
		},
		{
			name: "most recent active delivery wins",
			deliveries: []*domain.Delivery{
				{ID: "delivery-old", DriverID: "driver-1", Status: domain.DeliveryStatusPicked, CreatedAt: baseTime.Add(-time.Hour)},
				{ID: "delivery-new", DriverID: "driver-1", Status: domain.DeliveryStatusAssigned, CreatedAt: baseTime},
			},
			want: "delivery-new",
		},
		{
			name: "another driver's delivery is ignored",
			deliveries: []*domain.Delivery{
				{ID: "delivery-1", DriverID: "driver-2", Status: domain.DeliveryStatusInTransit, CreatedAt: baseTime},
			},
			want: "",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newTrackingFixture(service.DefaultTrackingPolicy())
			f.addDriver("driver-1", domain.DriverStatusOnDelivery)
			for _, d := range tc.deliveries {
				f.deliveries.AddDelivery(d)
			}

			result, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Sample.DeliveryID != tc.want {
				t.Errorf("expected delivery %q, got %q", tc.want, result.Sample.DeliveryID)
			}
		})
	}
}

// ──────────────────────────────────────────────
// 3. RETENTION
// ──────────────────────────────────────────────

func TestUpdateLocation_HistoryCappedAt1000(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	ctx := context.Background()

	var first *domain.LocationSample
	for i := 0; i < 1001; i++ {
		p := domain.GeoPoint{Longitude: paris.Longitude + float64(i)*1e-5, Latitude: paris.Latitude}
		result, err := f.service.UpdateLocation(ctx, f.report("driver-1", p))
		if err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
		if i == 0 {
			first = result.Sample
		}
	}

	if got := f.locations.Count("driver-1"); got != 1000 {
		t.Fatalf("expected 1000 samples after 1001 appends, got %d", got)
	}

	history, _ := f.locations.QueryHistory(ctx, repository.HistoryFilter{DriverID: "driver-1", Limit: 1000})
	for _, s := range history {
		if s.ID == first.ID {
			t.Fatal("expected the oldest sample to be trimmed")
		}
	}
}

func TestUpdateLocation_TrimFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	f.locations.TrimError = errors.New("lock timeout")

	_, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris))
	if err != nil {
		t.Fatalf("trim failure must not fail the write, got %v", err)
	}
	if f.locations.TrimCallCount != 1 {
		t.Errorf("expected trim to be attempted once, got %d", f.locations.TrimCallCount)
	}
	if f.locations.Count("driver-1") != 1 {
		t.Error("expected the sample to be stored")
	}
}

func TestUpdateLocation_SweepModeSkipsInlineTrim(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.TrackingPolicy{HistoryCap: 5, TrimInline: false})
	f.addDriver("driver-1", domain.DriverStatusAvailable)

	for i := 0; i < 8; i++ {
		if _, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.locations.TrimCallCount != 0 {
		t.Errorf("expected no inline trim, got %d calls", f.locations.TrimCallCount)
	}
	if f.locations.Count("driver-1") != 8 {
		t.Errorf("expected all 8 samples until the sweep runs, got %d", f.locations.Count("driver-1"))
	}
}

// ──────────────────────────────────────────────
// 4. ORDERING
// ──────────────────────────────────────────────

func TestUpdateLocation_LastWriteWinsByDefault(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	ctx := context.Background()

	newer := baseTime.Add(time.Minute)
	older := baseTime.Add(-time.Minute)

	req := f.report("driver-1", paris)
	req.Timestamp = &newer
	_, _ = f.service.UpdateLocation(ctx, req)

	req = f.report("driver-1", eiffel)
	req.Timestamp = &older
	result, err := f.service.UpdateLocation(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Applied {
		t.Error("expected the delayed update to be applied")
	}
	if got := f.drivers.GetDriver("driver-1").Location; *got != eiffel {
		t.Errorf("expected the last write to win, got %v", got)
	}
}

func TestUpdateLocation_RejectStale(t *testing.T) {
	t.Parallel()

	policy := service.DefaultTrackingPolicy()
	policy.RejectStale = true
	f := newTrackingFixture(policy)
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	ctx := context.Background()

	newer := baseTime.Add(time.Minute)
	older := baseTime.Add(-time.Minute)

	req := f.report("driver-1", paris)
	req.Timestamp = &newer
	_, _ = f.service.UpdateLocation(ctx, req)

	req = f.report("driver-1", eiffel)
	req.Timestamp = &older
	result, err := f.service.UpdateLocation(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Applied {
		t.Error("expected the stale update to be ignored")
	}
	if got := f.drivers.GetDriver("driver-1").Location; *got != paris {
		t.Errorf("expected position to stay at %v, got %v", paris, got)
	}
	if p, _ := f.index.Position("driver-1"); p != paris {
		t.Errorf("expected index to stay at %v, got %v", paris, p)
	}
	if f.locations.Count("driver-1") != 2 {
		t.Errorf("expected the stale sample to be kept in history, got %d samples", f.locations.Count("driver-1"))
	}
}

func TestUpdateLocation_RejectStale_FutureTimestampClamped(t *testing.T) {
	t.Parallel()

	policy := service.DefaultTrackingPolicy()
	policy.RejectStale = true
	f := newTrackingFixture(policy)
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	ctx := context.Background()

	future := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	req := f.report("driver-1", paris)
	req.Timestamp = &future
	if _, err := f.service.UpdateLocation(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.drivers.GetDriver("driver-1").LastLocationUpdate; got.After(baseTime.Add(time.Minute)) {
		t.Errorf("expected future timestamp clamped to server time, got %v", got)
	}

	result, err := f.service.UpdateLocation(ctx, f.report("driver-1", eiffel))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Applied {
		t.Error("expected the next update to be applied")
	}
	if got := f.drivers.GetDriver("driver-1").Location; *got != eiffel {
		t.Errorf("expected position %v, got %v", eiffel, got)
	}
}

// ──────────────────────────────────────────────
// 5. SIDE CHANNELS
// ──────────────────────────────────────────────

func TestUpdateLocation_PublishFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	f.publisher.PublishError = errors.New("broker down")

	if _, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris)); err != nil {
		t.Fatalf("publish failure must not fail the write, got %v", err)
	}
}

func TestUpdateLocation_IndexFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	f.index.UpsertError = errors.New("redis timeout")

	if _, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris)); err != nil {
		t.Fatalf("index failure must not fail the write, got %v", err)
	}
	if f.locations.Count("driver-1") != 1 {
		t.Error("expected the sample to be stored")
	}
}

func TestUpdateLocation_InvalidatesDriverCache(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusAvailable)
	_ = f.cache.SetDriver(context.Background(), f.drivers.GetDriver("driver-1"))

	if _, err := f.service.UpdateLocation(context.Background(), f.report("driver-1", paris)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.cache.Has("driver-1") {
		t.Error("expected cached profile to be invalidated")
	}
}

// ──────────────────────────────────────────────
// 6. CURRENT POSITION
// ──────────────────────────────────────────────

func TestGetCurrent(t *testing.T) {
	t.Parallel()

	f := newTrackingFixture(service.DefaultTrackingPolicy())
	f.addDriver("driver-1", domain.DriverStatusOffline)
	ctx := context.Background()

	if _, err := f.service.GetCurrent(ctx, "driver-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any location, got %v", err)
	}
	if _, err := f.service.GetCurrent(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown driver, got %v", err)
	}

	if _, err := f.service.UpdateLocation(ctx, f.report("driver-1", eiffel)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	driver, err := f.service.GetCurrent(ctx, "driver-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *driver.Location != eiffel || driver.Status != domain.DriverStatusAvailable {
		t.Errorf("unexpected current position %+v", driver)
	}

	// Second read is served from cache.
	_, _ = f.service.GetCurrent(ctx, "driver-1")
	if f.cache.HitCount == 0 {
		t.Error("expected a cache hit")
	}
}
