package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MustBeArt/postlocutor/internal/state"
)

// stateCollector reads a ReceiverState snapshot on every scrape
type stateCollector struct {
	state *state.ReceiverState

	packets       *prometheus.Desc
	bytes         *prometheus.Desc
	validFrames   *prometheus.Desc
	invalidFrames *prometheus.Desc
	framesByType  *prometheus.Desc
	decoded       *prometheus.Desc
	played        *prometheus.Desc
	decodeErrors  *prometheus.Desc
	evictions     *prometheus.Desc
	underruns     *prometheus.Desc
	ptt           *prometheus.Desc
	lastAudio     *prometheus.Desc
}

func newStateCollector(st *state.ReceiverState) *stateCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &stateCollector{
		state:         st,
		packets:       desc("packets_received_total", "Total number of UDP datagrams received"),
		bytes:         desc("bytes_received_total", "Total number of UDP payload bytes received"),
		validFrames:   desc("frames_valid_total", "Total number of datagrams that parsed as frames"),
		invalidFrames: desc("frames_invalid_total", "Total number of datagrams that failed to parse"),
		framesByType:  desc("frames_total", "Total number of valid frames by frame type", "type"),
		decoded:       desc("opus_frames_decoded_total", "Total number of Opus frames decoded"),
		played:        desc("audio_chunks_played_total", "Total number of PCM chunks pulled by the sink"),
		decodeErrors:  desc("opus_decode_errors_total", "Total number of Opus decode failures"),
		evictions:     desc("playback_buffer_evictions_total", "Total number of chunks evicted from a full playback buffer"),
		underruns:     desc("playback_underruns_total", "Total number of pulls padded with silence"),
		ptt:           desc("ptt_active", "1 while the sender has push-to-talk keyed"),
		lastAudio:     desc("last_audio_timestamp_seconds", "Unix time of the last audio frame"),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packets
	ch <- c.bytes
	ch <- c.validFrames
	ch <- c.invalidFrames
	ch <- c.framesByType
	ch <- c.decoded
	ch <- c.played
	ch <- c.decodeErrors
	ch <- c.evictions
	ch <- c.underruns
	ch <- c.ptt
	ch <- c.lastAudio
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.state.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.packets, s.PacketsReceived)
	counter(c.bytes, s.BytesReceived)
	counter(c.validFrames, s.ValidFrames)
	counter(c.invalidFrames, s.InvalidFrames)
	counter(c.framesByType, s.AudioFrames, "Audio")
	counter(c.framesByType, s.TextFrames, "Text")
	counter(c.framesByType, s.ControlFrames, "Control")
	counter(c.framesByType, s.DataFrames, "Data")
	counter(c.framesByType, s.UnknownFrames, "Unknown")
	counter(c.decoded, s.FramesDecoded)
	counter(c.played, s.FramesPlayed)
	counter(c.decodeErrors, s.DecodeErrors)
	counter(c.evictions, s.BufferEvictions)
	counter(c.underruns, s.Underruns)

	ptt := 0.0
	if s.PTTActive {
		ptt = 1
	}
	ch <- prometheus.MustNewConstMetric(c.ptt, prometheus.GaugeValue, ptt)

	lastAudio := 0.0
	if !s.LastAudioTime.IsZero() {
		lastAudio = float64(s.LastAudioTime.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastAudio, prometheus.GaugeValue, lastAudio)
}
