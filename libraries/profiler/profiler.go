package profiler

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"runtime/pprof"
	"sort"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/greymass/roborovski/libraries/logger"
)

type Config struct {
	ServiceName string
	Interval    time.Duration // default 60s
	TopN        int           // default 20
}

var (
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
)

// Start captures a CPU profile every Interval and logs the hottest functions
// under the "profiler" category. Starting again replaces the running loop.
func Start(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	stopLocked()

	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown"
	}

	stopCh = make(chan struct{})
	stopped = make(chan struct{})
	logger.Printf("profiler", "CPU profiling every %v", cfg.Interval)

	go loop(cfg, stopCh, stopped)
}

func Stop() {
	mu.Lock()
	defer mu.Unlock()
	stopLocked()
}

func stopLocked() {
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
	stopCh, stopped = nil, nil
	logger.Printf("profiler", "CPU profiling stopped")
}

func EnableBlockProfiling() {
	runtime.SetBlockProfileRate(1)
}

func loop(cfg Config, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		var buf bytes.Buffer
		if err := pprof.StartCPUProfile(&buf); err != nil {
			logger.Printf("profiler", "could not start CPU profile: %v", err)
			return
		}
		start := time.Now()
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			pprof.StopCPUProfile()
			return
		}
		pprof.StopCPUProfile()
		report(cfg, start, &buf)
	}
}

func report(cfg Config, start time.Time, r io.Reader) {
	s, err := Summarize(r)
	if err != nil {
		logger.Printf("profiler", "could not parse profile: %v", err)
		return
	}
	if s.Total == 0 {
		logger.Printf("profiler", "no CPU samples captured")
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Printf("profiler", "%s cpu profile at %s: %s sampled over %v",
		cfg.ServiceName, start.Format("15:04:05"), s.Duration(s.Total), cfg.Interval)
	logger.Printf("profiler", "goroutines=%d heap=%s sys=%s gc=%d",
		runtime.NumGoroutine(), logger.FormatBytes(int64(m.Alloc)), logger.FormatBytes(int64(m.HeapSys)), m.NumGC)

	var cum int64
	for i, fn := range s.Functions {
		if i == cfg.TopN {
			break
		}
		cum += fn.Flat
		logger.Printf("profiler", "%10s %6.2f%% %6.2f%%  %s",
			s.Duration(fn.Flat), pct(fn.Flat, s.Total), pct(cum, s.Total), fn.Name)
	}
}

type Function struct {
	Name string
	Flat int64
}

// Summary aggregates CPU samples by the leaf function of each stack.
type Summary struct {
	Period    int64 // nanoseconds per sample
	Total     int64
	Functions []Function // descending by Flat
}

func Summarize(r io.Reader) (*Summary, error) {
	prof, err := profile.Parse(r)
	if err != nil {
		return nil, err
	}

	s := &Summary{Period: int64(time.Millisecond)}
	if len(prof.SampleType) > 0 && prof.SampleType[0].Unit == "nanoseconds" && prof.Period > 0 {
		s.Period = prof.Period
	}

	flat := make(map[string]int64)
	for _, sample := range prof.Sample {
		if len(sample.Value) == 0 {
			continue
		}
		n := sample.Value[0]
		s.Total += n
		if len(sample.Location) == 0 || len(sample.Location[0].Line) == 0 {
			continue
		}
		if fn := sample.Location[0].Line[0].Function; fn != nil {
			flat[fn.Name] += n
		}
	}

	for name, n := range flat {
		s.Functions = append(s.Functions, Function{Name: name, Flat: n})
	}
	sort.Slice(s.Functions, func(i, j int) bool {
		if s.Functions[i].Flat != s.Functions[j].Flat {
			return s.Functions[i].Flat > s.Functions[j].Flat
		}
		return s.Functions[i].Name < s.Functions[j].Name
	})
	return s, nil
}

func (s *Summary) Duration(samples int64) string {
	d := time.Duration(samples * s.Period)
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.String()
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
