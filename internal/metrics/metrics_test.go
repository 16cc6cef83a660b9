package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/cbradio/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fixedStats domain.Stats

func (f fixedStats) Stats() domain.Stats { return domain.Stats(f) }

type fixedConns int

func (f fixedConns) Count() int { return int(f) }

func TestMetrics_GaugesReadSourcesOnScrape(t *testing.T) {
	req := require.New(t)
	m := New(fixedStats{Channels: 3, PrivateChannels: 1, TotalUsers: 7}, fixedConns(9))

	m.Relayed.Add(2)
	m.FramesIn.WithLabelValues("offer").Inc()

	req.Equal(2.0, testutil.ToFloat64(m.Relayed))
	req.Equal(1.0, testutil.ToFloat64(m.FramesIn.WithLabelValues("offer")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	req.True(strings.Contains(body, "cbradio_channels 3"))
	req.True(strings.Contains(body, "cbradio_private_channels 1"))
	req.True(strings.Contains(body, "cbradio_channel_members 7"))
	req.True(strings.Contains(body, "cbradio_connections 9"))
}
