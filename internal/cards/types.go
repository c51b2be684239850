// Package cards defines the core types shared by the planning and capture phases.
package cards

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CacheKey is the fixed key the planned JobBatch is stored under.
const CacheKey = "socialCardPages"

// Default card dimensions.
const (
	DefaultWidth  = 1200
	DefaultHeight = 628
	DefaultSuffix = "-social-card"
)

// CardSpec describes one output variant of a social card.
type CardSpec struct {
	Width  int    `json:"width" mapstructure:"width" yaml:"width"`
	Height int    `json:"height" mapstructure:"height" yaml:"height"`
	Suffix string `json:"suffix" mapstructure:"suffix" yaml:"suffix"`
}

// Validate rejects non-positive dimensions.
func (s CardSpec) Validate() error {
	if s.Width <= 0 {
		return fmt.Errorf("card width must be > 0, got %d", s.Width)
	}
	if s.Height <= 0 {
		return fmt.Errorf("card height must be > 0, got %d", s.Height)
	}
	return nil
}

// DefaultCardSpecs returns the single 1200x628 "-social-card" variant.
func DefaultCardSpecs() []CardSpec {
	return []CardSpec{{Width: DefaultWidth, Height: DefaultHeight, Suffix: DefaultSuffix}}
}

// PageRecord is one page extracted from a content query result.
type PageRecord struct {
	Slug    string
	Context map[string]any
}

// Job is one planned capture: a page path rendered at a fixed size.
// Path is the join key between the site route, the output file and the render page.
type Job struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FileName returns the PNG file name for the job relative to the output root.
func (j Job) FileName() string {
	return j.Path + ".png"
}

// JobBatch is the ordered list of jobs produced by one planning run.
type JobBatch []Job

// Limit returns the first n jobs. A negative n returns the whole batch.
func (b JobBatch) Limit(n int) JobBatch {
	if n < 0 || n >= len(b) {
		return b
	}
	return b[:n]
}

// Clone returns a copy that never aliases the receiver. A nil batch clones to an empty one.
func (b JobBatch) Clone() JobBatch {
	out := make(JobBatch, len(b))
	copy(out, b)
	return out
}

// Paths lists the job paths in order.
func (b JobBatch) Paths() []string {
	out := make([]string, 0, len(b))
	for _, job := range b {
		out = append(out, job.Path)
	}
	return out
}

// ImagePath joins the output root and a job path into the PNG destination.
func ImagePath(outputRoot, path string) string {
	return filepath.Join(outputRoot, filepath.FromSlash(path)+".png")
}

// JoinURL appends a job path to the base URL without doubling the slash.
func JoinURL(baseURL, path string) string {
	if strings.HasSuffix(baseURL, "/") && strings.HasPrefix(path, "/") {
		return baseURL + path[1:]
	}
	return baseURL + path
}

// ExistingOutputSet holds absolute paths of card images already on disk.
type ExistingOutputSet map[string]struct{}

// NewExistingOutputSet builds a set from the given paths.
func NewExistingOutputSet(paths ...string) ExistingOutputSet {
	set := make(ExistingOutputSet, len(paths))
	for _, p := range paths {
		set.Add(p)
	}
	return set
}

// Add inserts a path.
func (s ExistingOutputSet) Add(path string) {
	s[path] = struct{}{}
}

// Has reports exact membership.
func (s ExistingOutputSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// PageRequest asks the host build to create the page that renders a card.
type PageRequest struct {
	Path      string         `json:"path"`
	Component string         `json:"component"`
	Context   map[string]any `json:"context"`
}

// CaptureRequest is everything the capture driver needs for one job.
type CaptureRequest struct {
	URL         string
	Width       int
	Height      int
	Destination string
	// Quiescence is the fixed wait applied after navigation before the screenshot.
	Quiescence time.Duration
}

// Outcome records the result of one capture attempt.
type Outcome struct {
	Job         Job
	URL         string
	Destination string
	Duration    time.Duration
	Err         error
}

// Succeeded reports whether the capture completed.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// RunReport aggregates the outcomes of one capture run.
type RunReport struct {
	RunID       string
	Skipped     bool
	Planned     int
	Attempted   int
	Succeeded   int
	Failed      int
	FailedPaths []string
	Outcomes    []Outcome
}

// Record appends an outcome and updates the counters.
func (r *RunReport) Record(outcome Outcome) {
	r.Attempted++
	if outcome.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
		r.FailedPaths = append(r.FailedPaths, outcome.Job.Path)
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

// Summary renders a one-line human readable summary.
func (r RunReport) Summary() string {
	switch {
	case r.Skipped:
		return "social card capture disabled"
	case r.Attempted == 0:
		return "no social cards to capture"
	default:
		return fmt.Sprintf("captured %d of %d social cards, %d failed", r.Succeeded, r.Attempted, r.Failed)
	}
}
