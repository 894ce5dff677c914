package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitchtrack",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"stage"})

	DetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchtrack",
		Name:      "detections_total",
		Help:      "Total number of detector boxes fed to trackers",
	})

	TracksSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchtrack",
		Name:      "tracks_spawned_total",
		Help:      "Total number of track identities created",
	})

	TracksEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchtrack",
		Name:      "tracks_evicted_total",
		Help:      "Total number of tracks removed after exceeding max age",
	})

	RecordsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchtrack",
		Name:      "track_records_emitted_total",
		Help:      "Total number of track records emitted by trackers",
	})

	LiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pitchtrack",
		Name:      "live_tracks",
		Help:      "Live tracks (pending and confirmed) per match",
	}, []string{"match_id"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pitchtrack",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchtrack",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchtrack",
		Name:      "active_matches",
		Help:      "Number of matches currently being ingested",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pitchtrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchtrack",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
