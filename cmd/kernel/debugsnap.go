package main

import (
	"io"

	"github.com/google/pprof/profile"

	"block"
	"sched"
)

// writeDebugSnapshot serializes the scheduler's and block caches' debug
// counter blocks as a pprof profile.Profile, one Sample per counter, value
// type "count". This core has no timer-signal-driven CPU sampling to hand
// pprof (spec.md §1 keeps real interrupts out of scope), so rather than
// leave github.com/google/pprof unexercised, it backs a one-shot counter
// snapshot instead of the sampling profiler it's usually built for.
func writeDebugSnapshot(w io.Writer, infoCache, dataCache *block.Manager_t) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "snapshot", Unit: "count"},
		Period:     1,
	}

	addCounter := func(name string, v int64) {
		fn := &profile.Function{
			ID:   uint64(len(p.Function) + 1),
			Name: name,
		}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{
			ID: uint64(len(p.Location) + 1),
			Line: []profile.Line{
				{Function: fn},
			},
		}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{v},
		})
	}

	addCounter("sched.reschedules", int64(sched.Debug.Reschedules))
	addCounter("sched.idles", int64(sched.Debug.Idles))
	addCounter("block.info_cache.hits", int64(infoCache.Debug.Hits))
	addCounter("block.info_cache.misses", int64(infoCache.Debug.Misses))
	addCounter("block.data_cache.hits", int64(dataCache.Debug.Hits))
	addCounter("block.data_cache.misses", int64(dataCache.Debug.Misses))

	if err := p.CheckValid(); err != nil {
		return err
	}
	return p.Write(w)
}
