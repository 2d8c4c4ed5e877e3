// Package metrics exports batching and pipeline telemetry to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/batchtts/tts/batch"
	"github.com/dgnsrekt/batchtts/tts/pipeline"
)

const namespace = "batchtts"

// Collector reads snapshots on every scrape. Either source may be nil.
type Collector struct {
	executor func() batch.Snapshot
	pipeline func() pipeline.Snapshot

	chunks            *prometheus.Desc
	groups            *prometheus.Desc
	engineCalls       *prometheus.Desc
	batchFallbacks    *prometheus.Desc
	parameterSwitches *prometheus.Desc
	configures        *prometheus.Desc
	failures          *prometheus.Desc
	cacheHits         *prometheus.Desc
	engineSeconds     *prometheus.Desc
	batchRatio        *prometheus.Desc

	tasks      *prometheus.Desc
	pending    *prometheus.Desc
	flushes    *prometheus.Desc
	stage      *prometheus.Desc
	queueDepth *prometheus.Desc
	latency    *prometheus.Desc
}

// NewCollector returns a collector over an executor snapshot source.
func NewCollector(executor func() batch.Snapshot) *Collector {
	return newCollector(executor, nil)
}

// NewPipelineCollector returns a collector over a running pipeline. Executor
// metrics are taken from the pipeline snapshot.
func NewPipelineCollector(p *pipeline.Pipeline) *Collector {
	return newCollector(func() batch.Snapshot { return p.Stats().Executor }, p.Stats)
}

func newCollector(executor func() batch.Snapshot, pl func() pipeline.Snapshot) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		executor: executor,
		pipeline: pl,

		chunks:            desc("chunks_total", "Chunks executed by grouping outcome", "mode"),
		groups:            desc("groups_total", "Parameter groups executed"),
		engineCalls:       desc("engine_calls_total", "Engine generation calls by tier", "tier"),
		batchFallbacks:    desc("batch_fallbacks_total", "Native batch calls that fell back to serial generation"),
		parameterSwitches: desc("parameter_switches_total", "Transitions between parameter signatures"),
		configures:        desc("configure_calls_total", "Engine configure calls"),
		failures:          desc("failures_total", "Chunks replaced by a silence placeholder"),
		cacheHits:         desc("cache_hits_total", "Chunks served from the audio cache"),
		engineSeconds:     desc("engine_seconds_total", "Wall time spent inside the engine"),
		batchRatio:        desc("batch_ratio", "Fraction of chunks synthesized in groups"),

		tasks:      desc("pipeline_tasks_total", "Pipeline tasks by outcome", "outcome"),
		pending:    desc("pipeline_pending_tasks", "Tasks submitted but not yet delivered"),
		flushes:    desc("pipeline_flushes_total", "Synthesis buffer flushes by trigger", "trigger"),
		stage:      desc("pipeline_stage_seconds_total", "Time spent per pipeline stage", "stage"),
		queueDepth: desc("pipeline_queue_depth", "Items waiting in a pipeline queue", "queue"),
		latency:    desc("pipeline_latency_seconds_total", "Summed submit to delivery latency"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.chunks, c.groups, c.engineCalls, c.batchFallbacks, c.parameterSwitches,
		c.configures, c.failures, c.cacheHits, c.engineSeconds, c.batchRatio,
	} {
		ch <- d
	}
	if c.pipeline == nil {
		return
	}
	for _, d := range []*prometheus.Desc{c.tasks, c.pending, c.flushes, c.stage, c.queueDepth, c.latency} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.executor != nil {
		c.collectExecutor(ch, c.executor())
	}
	if c.pipeline != nil {
		c.collectPipeline(ch, c.pipeline())
	}
}

func (c *Collector) collectExecutor(ch chan<- prometheus.Metric, s batch.Snapshot) {
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	counter(c.chunks, float64(s.BatchedChunks), "batched")
	counter(c.chunks, float64(s.IndividualChunks), "individual")
	counter(c.groups, float64(s.Groups))
	counter(c.engineCalls, float64(s.BatchCalls), "batch")
	counter(c.engineCalls, float64(s.SerialCalls), "serial")
	counter(c.batchFallbacks, float64(s.BatchFallbacks))
	counter(c.parameterSwitches, float64(s.ParameterSwitches))
	counter(c.configures, float64(s.Configures))
	counter(c.failures, float64(s.Failures))
	counter(c.cacheHits, float64(s.CacheHits))
	counter(c.engineSeconds, s.EngineTime.Seconds())

	ch <- prometheus.MustNewConstMetric(c.batchRatio, prometheus.GaugeValue, s.BatchPercentage()/100)
}

func (c *Collector) collectPipeline(ch chan<- prometheus.Metric, s pipeline.Snapshot) {
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.tasks, float64(s.Submitted), "submitted")
	counter(c.tasks, float64(s.Rejected), "rejected")
	counter(c.tasks, float64(s.Completed), "completed")
	counter(c.tasks, float64(s.Failed), "failed")
	counter(c.tasks, float64(s.Aborted), "aborted")
	gauge(c.pending, float64(s.Pending))

	counter(c.flushes, float64(s.SizeFlushes), "size")
	counter(c.flushes, float64(s.TimeoutFlushes), "timeout")
	counter(c.flushes, float64(s.DrainFlushes), "drain")

	counter(c.stage, s.PreprocessTime.Seconds(), "preprocess")
	counter(c.stage, s.SynthesisTime.Seconds(), "synthesize")
	counter(c.stage, s.PostprocessTime.Seconds(), "postprocess")

	gauge(c.queueDepth, float64(s.Intake.CurrentSize), "intake")
	gauge(c.queueDepth, float64(s.Synthesis.CurrentSize), "synthesize")
	gauge(c.queueDepth, float64(s.Postprocess.CurrentSize), "postprocess")
	gauge(c.queueDepth, float64(s.Results.CurrentSize), "results")

	counter(c.latency, s.TotalLatency.Seconds())
}

// Handler registers collectors on a fresh registry and serves it.
func Handler(collectors ...prometheus.Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}
