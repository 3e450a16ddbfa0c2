package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inlandnav/euris-resources/internal/app"
	"github.com/inlandnav/euris-resources/internal/config"
	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/logging"
	"github.com/inlandnav/euris-resources/internal/service"
	"github.com/stretchr/testify/require"
)

const bridgeISRS = "NLAMS00001B012340002"

func newCatalogServer(t *testing.T, scheduleCalls *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/arcgis/rest/services/bridges/0/query", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[{"attributes":{"LOCODE":"` + bridgeISRS + `","OBJNAM":"Schellingwouderbrug"},"geometry":{"x":4.96,"y":52.39}}]}`))
	})
	mux.HandleFunc("GET /visuris/api/Bridges/GetBridge", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, bridgeISRS, r.URL.Query().Get("isrs"))
		w.Write([]byte(`{"feature":{"objectname":"Schellingwouderbrug","locode":"` + bridgeISRS + `","rT_NAME":"Buiten IJ","wW_NAME":"IJ","hectom":"12","height":950,"mwidthcm":4000}}`))
	})
	mux.HandleFunc("GET /visuris/api/OperationTimes/GetOperationTimes", func(w http.ResponseWriter, r *http.Request) {
		scheduleCalls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /visuris/api/NtsNotices/GetNoticesForObject", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","title":"closure"}]`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNew(t *testing.T) {
	var scheduleCalls atomic.Int32
	server := newCatalogServer(t, &scheduleCalls)

	t.Setenv("EURIS_ENVIRONMENT", "development")
	t.Setenv("EURIS_BASE_URL", server.URL)
	t.Setenv("EURIS_TIMEZONE", "UTC")
	t.Setenv("EURIS_ENABLE_LOCKS", "false")
	t.Setenv("EURIS_ENABLE_BERTHS", "false")
	t.Setenv("EURIS_ENABLE_NOTICES", "false")

	conf, err := config.ConfigFromEnv()
	require.NoError(t, err)

	svc, err := service.New(conf, server.Client(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Shutdown()) })

	ctx := context.Background()
	key := domain.NewCompositeKey(domain.KindBridge, bridgeISRS)

	t.Run("region query", func(t *testing.T) {
		result, err := svc.Aggregator.QueryRegion(ctx, domain.BBox{MinLon: 4.9, MinLat: 52.3, MaxLon: 5, MaxLat: 52.4}, app.ModeSummary)
		require.NoError(t, err)
		require.False(t, result.Partial())
		require.Len(t, result.Resources, 1)

		summary, ok := result.Resources[key].(domain.Summary)
		require.True(t, ok)
		require.Equal(t, "Schellingwouderbrug", summary.Name)
		require.Equal(t, domain.Point{Lon: 4.96, Lat: 52.39}, summary.Point)
	})

	t.Run("single note with side data", func(t *testing.T) {
		note, err := svc.Aggregator.QueryOne(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.KindBridge, note.Kind)
		require.Equal(t, domain.Point{Lon: 4.96, Lat: 52.39}, note.Position)
		require.Contains(t, note.Description, "Closure")

		_, err = svc.Aggregator.QueryOne(ctx, key)
		require.NoError(t, err)
		require.Equal(t, int32(1), scheduleCalls.Load())
	})

	t.Run("daily reset refetches schedules", func(t *testing.T) {
		svc.Invalidator.Start()
		require.NoError(t, svc.Invalidator.RunNow())
		require.Eventually(t, func() bool {
			_, err := svc.Aggregator.QueryOne(ctx, key)
			require.NoError(t, err)
			return scheduleCalls.Load() == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("disabled sources are unknown", func(t *testing.T) {
		_, err := svc.Aggregator.QueryOne(ctx, domain.NewCompositeKey(domain.KindLock, "X"))
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}
