package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/pprof/profile"
)

func buildProfile(t *testing.T) *bytes.Buffer {
	t.Helper()
	hot := &profile.Function{ID: 1, Name: "abi.(*Decoder).Decode"}
	cold := &profile.Function{ID: 2, Name: "internal.(*Store).Commit"}
	locHot := &profile.Location{ID: 1, Line: []profile.Line{{Function: hot}}}
	locCold := &profile.Location{ID: 2, Line: []profile.Line{{Function: cold}}}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cpu", Unit: "nanoseconds"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     int64(10 * time.Millisecond),
		Function:   []*profile.Function{hot, cold},
		Location:   []*profile.Location{locHot, locCold},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locHot}, Value: []int64{7}},
			{Location: []*profile.Location{locCold}, Value: []int64{2}},
			{Location: []*profile.Location{locHot, locCold}, Value: []int64{1}},
		},
	}

	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return &buf
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(buildProfile(t))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if s.Total != 10 {
		t.Errorf("Total = %d, want 10", s.Total)
	}
	if s.Period != int64(10*time.Millisecond) {
		t.Errorf("Period = %d, want 10ms", s.Period)
	}
	if len(s.Functions) != 2 {
		t.Fatalf("len(Functions) = %d, want 2", len(s.Functions))
	}
	if s.Functions[0].Name != "abi.(*Decoder).Decode" || s.Functions[0].Flat != 8 {
		t.Errorf("Functions[0] = %+v, want Decode with 8 samples", s.Functions[0])
	}
	if got := s.Duration(s.Total); got != "100ms" {
		t.Errorf("Duration(Total) = %q, want 100ms", got)
	}
}

func TestSummarizeRejectsGarbage(t *testing.T) {
	if _, err := Summarize(bytes.NewReader([]byte("not a profile"))); err == nil {
		t.Error("Summarize(garbage) = nil error")
	}
}

func TestStartStop(t *testing.T) {
	Start(Config{ServiceName: "test", Interval: 50 * time.Millisecond})
	Start(Config{ServiceName: "test", Interval: 50 * time.Millisecond})
	time.Sleep(120 * time.Millisecond)
	Stop()
	Stop()
}
