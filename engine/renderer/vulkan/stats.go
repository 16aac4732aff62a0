package vulkan

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

func writeCacheStats(obj *jwriter.ObjectState, name string, stats CacheStats) {
	o := obj.Name(name).Object()
	o.Name("entries").Int(stats.Entries)
	o.Name("hits").Float64(float64(stats.Hits))
	o.Name("misses").Float64(float64(stats.Misses))
	o.End()
}

// WriteStats writes a JSON object describing the context's caches,
// allocators and frame timing.
func (vc *VulkanContext) WriteStats(w *jwriter.Writer) {
	obj := w.Object()
	defer obj.End()

	obj.Name("context").String(vc.ID.String())
	obj.Name("frames").Float64(float64(vc.FrameNumber))
	obj.Name("flightCount").Int(vc.cfg.MaxFlightCount)
	obj.Name("currentSlot").Int(vc.CurrentFrame)

	timing := obj.Name("timing").Object()
	timing.Name("fps").Float64(vc.metrics.FPS())
	timing.Name("frameTimeMs").Float64(vc.metrics.FrameTime())
	timing.Name("lastLatencyMs").Float64(float64(vc.lastLatency.Microseconds()) / 1000)
	timing.End()

	caches := obj.Name("caches").Object()
	writeCacheStats(&caches, "layouts", vc.Layouts.Stats())
	writeCacheStats(&caches, "renderPasses", vc.RenderPasses.Stats())
	writeCacheStats(&caches, "pipelines", vc.Pipelines.Stats())
	writeCacheStats(&caches, "samplers", vc.Samplers.Stats())
	caches.End()

	ds := vc.Descriptors.Stats()
	descriptors := obj.Name("descriptorSets").Object()
	descriptors.Name("pools").Int(ds.Pools)
	descriptors.Name("live").Int(ds.Live)
	descriptors.Name("allocated").Float64(float64(ds.Allocated))
	descriptors.Name("freed").Float64(float64(ds.Freed))
	descriptors.Name("pending").Int(ds.Pending)
	descriptors.End()

	us := vc.Uniforms.Stats()
	uniforms := obj.Name("uniforms").Object()
	uniforms.Name("chunkSize").Float64(float64(us.ChunkSize))
	uniforms.Name("capacity").Float64(float64(us.Capacity))
	uniforms.Name("used").Float64(float64(us.Used))
	uniforms.Name("growths").Int(us.Growths)
	uniforms.Name("retired").Int(us.Retired)
	uniforms.End()

	resources := obj.Name("resources").Object()
	resources.Name("buffers").Int(vc.buffers.Len())
	resources.Name("images").Int(vc.images.Len())
	resources.Name("deferred").Int(vc.Pacer.Pending())
	resources.End()
}

// StatsJSON renders WriteStats into a standalone document.
func (vc *VulkanContext) StatsJSON() ([]byte, error) {
	w := jwriter.NewWriter()
	vc.WriteStats(&w)
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
