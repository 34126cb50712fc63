package bench

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/annidx/model"
)

// Latency summarizes per-query latencies.
type Latency struct {
	Mean time.Duration `json:"mean_ns"`
	P50  time.Duration `json:"p50_ns"`
	P95  time.Duration `json:"p95_ns"`
	P99  time.Duration `json:"p99_ns"`
	Max  time.Duration `json:"max_ns"`
}

// Measurement is the outcome of running the query set once.
type Measurement struct {
	Recall  float64 `json:"recall"`
	QPS     float64 `json:"qps"`
	Latency Latency `json:"latency"`
}

// IndexReport is the measurement of one index.
type IndexReport struct {
	Name      string         `json:"name"`
	BuildTime time.Duration  `json:"build_time_ns"`
	Params    map[string]int `json:"params"`
	Measurement
}

// SweepPoint is one setting of the swept parameter.
type SweepPoint struct {
	Value int `json:"value"`
	Measurement
}

// Sweep traces one index over a range of a search parameter.
type Sweep struct {
	Index  string       `json:"index"`
	Param  string       `json:"param"`
	Points []SweepPoint `json:"points"`
}

// Report is the result of a benchmark run.
type Report struct {
	Dataset   string        `json:"dataset"`
	Vectors   int           `json:"vectors"`
	Queries   int           `json:"queries"`
	Dimension int           `json:"dimension"`
	TopN      int           `json:"top_n"`
	Metric    string        `json:"metric"`
	Host      Host          `json:"host"`
	Indexes   []IndexReport `json:"indexes"`
	Sweeps    []Sweep       `json:"sweeps,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func newReport[K model.Key](ds *Dataset[K], cfg Config) *Report {
	return &Report{
		Dataset:   ds.Name,
		Vectors:   len(ds.Vectors),
		Queries:   len(ds.Queries),
		Dimension: ds.Dimension,
		TopN:      cfg.TopN,
		Metric:    cfg.Metric.String(),
		Host:      hostOnce(),
		CreatedAt: time.Now().UTC(),
	}
}

// AddSweep appends a sweep to the report.
func (r *Report) AddSweep(s *Sweep) {
	if s != nil {
		r.Sweeps = append(r.Sweeps, *s)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human-readable table.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "dataset: %s (%d vectors, %d queries, dim %d)\n", r.Dataset, r.Vectors, r.Queries, r.Dimension)
	fmt.Fprintf(w, "metric: %s  top_n: %d\n", r.Metric, r.TopN)
	fmt.Fprintf(w, "host: %s/%s  cpus: %d  %s  features: %s\n\n",
		r.Host.GOOS, r.Host.GOARCH, r.Host.NumCPU, r.Host.GoVersion, strings.Join(r.Host.Features, ","))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tBUILD\tRECALL\tQPS\tMEAN\tP50\tP95\tP99\tPARAMS")
	for _, ix := range r.Indexes {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.0f\t%s\t%s\t%s\t%s\t%s\n",
			ix.Name,
			ix.BuildTime.Round(time.Millisecond),
			ix.Recall,
			ix.QPS,
			ix.Latency.Mean, ix.Latency.P50, ix.Latency.P95, ix.Latency.P99,
			formatParams(ix.Params),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range r.Sweeps {
		fmt.Fprintf(w, "\n%s sweep over %s\n", s.Index, s.Param)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tRECALL\tQPS\tP50\tP99\n", strings.ToUpper(s.Param))
		for _, p := range s.Points {
			fmt.Fprintf(tw, "%d\t%.4f\t%.0f\t%s\t%s\n", p.Value, p.Recall, p.QPS, p.Latency.P50, p.Latency.P99)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	return nil
}

func formatParams(params map[string]int) string {
	parts := make([]string, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, params[k]))
	}
	return strings.Join(parts, " ")
}
