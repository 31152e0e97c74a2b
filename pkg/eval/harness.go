// Package eval runs suites of pattern checks against a target graph and
// reports how the match engine did.
//
// A suite is a YAML (or JSON) document listing patterns in the pattern text
// language together with the rows each one is expected to produce:
//
//	name: friends
//	cases:
//	  - name: friends of 5
//	    pattern: |
//	      MATCH (x)-[:FRIEND]->(y) WHERE x.`id`=5 RETURN y
//	    expect: [["12"], ["7"], ["9"]]
//	    verify: true
//	  - name: unanchored cycle
//	    pattern: MATCH (a)-[:RelA]->(b)-[:RelA]->(c)-[:RelA]->(a)
//	    expect_status: not_started
//
// Example usage:
//
//	harness := eval.NewHarness(graph)
//	if err := harness.LoadSuite("suite.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eval.NewReporter(os.Stdout).PrintSummary(result)
//
// Each case gets its own engine and its own watchdog deadline. Cases run
// concurrently, bounded by the harness concurrency.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/szrrizvi/arebac/pkg/cache"
	"github.com/szrrizvi/arebac/pkg/indexed"
	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
	"github.com/szrrizvi/arebac/pkg/patterntext"
	"github.com/szrrizvi/arebac/pkg/reference"
)

// ErrNoCases is returned by Run when nothing was added.
var ErrNoCases = errors.New("eval: no test cases defined")

// CaseStatus is the verdict for one test case.
type CaseStatus string

const (
	StatusPass       CaseStatus = "pass"
	StatusFail       CaseStatus = "fail"
	StatusKilled     CaseStatus = "killed"
	StatusNotStarted CaseStatus = "not_started"
	StatusError      CaseStatus = "error"
)

// TestCase defines a single evaluation test case.
type TestCase struct {
	// Name is a human-readable identifier for this test
	Name string `json:"name" yaml:"name"`

	// Pattern is the query in pattern text
	Pattern string `json:"pattern" yaml:"pattern"`

	// Bind pins pattern variables to external node ids, on top of any id
	// requirement in the pattern itself
	Bind map[string]string `json:"bind,omitempty" yaml:"bind,omitempty"`

	// Expect lists the rows the check must return, in schema order, as
	// external ids. Row order does not matter. Nil means rows are not
	// checked; an empty list means no rows.
	Expect [][]string `json:"expect,omitempty" yaml:"expect,omitempty"`

	// ExpectStatus is the engine outcome the case expects
	// ("completed", "not_started", "killed", "failed"). Empty means
	// completed.
	ExpectStatus string `json:"expect_status,omitempty" yaml:"expect_status,omitempty"`

	// Verify cross-checks completed rows against brute-force enumeration
	Verify bool `json:"verify,omitempty" yaml:"verify,omitempty"`

	// Tags for grouping and filtering test cases
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// TestSuite is a collection of test cases.
type TestSuite struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string     `json:"version,omitempty" yaml:"version,omitempty"`
	Cases       []TestCase `json:"cases" yaml:"cases"`
}

// TestResult contains results for a single test case.
type TestResult struct {
	TestCase    TestCase      `json:"test_case"`
	Status      CaseStatus    `json:"status"`
	MatchStatus string        `json:"match_status,omitempty"`
	Rows        [][]string    `json:"rows"`
	Reference   [][]string    `json:"reference,omitempty"`
	Stats       match.Stats   `json:"stats"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// EvalResult contains the complete evaluation results.
type EvalResult struct {
	RunID     string        `json:"run_id"`
	SuiteName string        `json:"suite_name"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`

	// Per-test results, in the order the cases were added
	Results []TestResult `json:"results"`

	TotalTests  int `json:"total_tests"`
	PassedTests int `json:"passed_tests"`
	FailedTests int `json:"failed_tests"`
	Killed      int `json:"killed"`
	NotStarted  int `json:"not_started"`
	Errors      int `json:"errors"`
	Verified    int `json:"verified"`

	// Neighbour cache counters after the run, when a cache was used
	Cache *cache.Stats `json:"cache,omitempty"`
}

// Passed reports whether every case passed.
func (r *EvalResult) Passed() bool {
	return r.TotalTests > 0 && r.PassedTests == r.TotalTests
}

// Harness is the main evaluation harness.
type Harness struct {
	graph       *indexed.Graph
	cache       *cache.NeighbourCache[indexed.NodeID]
	suiteName   string
	testCases   []TestCase
	timeout     time.Duration
	concurrency int
	verify      bool
	mu          sync.RWMutex
}

// NewHarness creates a new evaluation harness over g. Cases run one at a
// time with a 6s deadline until configured otherwise.
func NewHarness(g *indexed.Graph) *Harness {
	return &Harness{
		graph:       g,
		suiteName:   "default",
		testCases:   make([]TestCase, 0),
		timeout:     6 * time.Second,
		concurrency: 1,
	}
}

// SetTimeout sets the per-case watchdog deadline. Zero disables it.
func (h *Harness) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = d
}

// SetConcurrency bounds how many cases run at once. Values below 1 mean 1.
func (h *Harness) SetConcurrency(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.concurrency = max(n, 1)
}

// SetVerify turns on reference verification for every case.
func (h *Harness) SetVerify(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verify = v
}

// UseCache routes neighbourhood lookups of every case through c. The cache
// is shared between cases.
func (h *Harness) UseCache(c *cache.NeighbourCache[indexed.NodeID]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = c
}

// AddTestCase adds a single test case.
func (h *Harness) AddTestCase(tc TestCase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.testCases = append(h.testCases, tc)
}

// AddTestCases adds multiple test cases.
func (h *Harness) AddTestCases(cases []TestCase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.testCases = append(h.testCases, cases...)
}

// ParseSuite decodes a suite document. JSON is accepted as YAML.
func ParseSuite(data []byte) (*TestSuite, error) {
	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	for i, tc := range suite.Cases {
		if strings.TrimSpace(tc.Pattern) == "" {
			return nil, fmt.Errorf("case %d (%s): empty pattern", i+1, tc.Name)
		}
		if tc.Name == "" {
			suite.Cases[i].Name = fmt.Sprintf("case-%d", i+1)
		}
	}
	return &suite, nil
}

// LoadSuite loads a test suite from a YAML or JSON file. The suite's name
// becomes the name of the run.
func (h *Harness) LoadSuite(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read suite file: %w", err)
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if suite.Name != "" {
		h.suiteName = suite.Name
	}
	h.testCases = append(h.testCases, suite.Cases...)
	klog.V(2).Infof("eval: loaded %d cases from %s", len(suite.Cases), path)
	return nil
}

// Run executes the evaluation and returns results.
func (h *Harness) Run(ctx context.Context) (*EvalResult, error) {
	h.mu.RLock()
	cases := slices.Clone(h.testCases)
	name := h.suiteName
	limit := h.concurrency
	c := h.cache
	h.mu.RUnlock()

	if len(cases) == 0 {
		return nil, ErrNoCases
	}

	runID := uuid.NewString()
	startTime := time.Now()
	klog.V(2).Infof("eval: run %s of %q, %d cases, concurrency %d", runID, name, len(cases), limit)

	results := make([]TestResult, len(cases))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			results[i] = h.runTestCase(ctx, tc)
			return nil
		})
	}
	_ = g.Wait()

	result := &EvalResult{
		RunID:     runID,
		SuiteName: name,
		Timestamp: startTime,
		Duration:  time.Since(startTime),
		Results:   results,
	}
	result.count()
	if c != nil {
		stats := c.Stats()
		result.Cache = &stats
	}
	klog.V(2).Infof("eval: run %s finished in %v, %d/%d passed",
		runID, result.Duration, result.PassedTests, result.TotalTests)
	return result, nil
}

func (r *EvalResult) count() {
	r.TotalTests = len(r.Results)
	for _, tr := range r.Results {
		switch tr.Status {
		case StatusPass:
			r.PassedTests++
		case StatusFail:
			r.FailedTests++
		case StatusKilled:
			r.Killed++
		case StatusNotStarted:
			r.NotStarted++
		default:
			r.Errors++
		}
		if tr.Reference != nil {
			r.Verified++
		}
	}
}

// runTestCase executes a single test case.
func (h *Harness) runTestCase(ctx context.Context, tc TestCase) TestResult {
	start := time.Now()
	tr := h.check(ctx, tc)
	tr.TestCase = tc
	tr.Duration = time.Since(start)
	if tr.Status != StatusPass {
		klog.V(3).Infof("eval: case %q: %s %s", tc.Name, tr.Status, tr.Error)
	}
	return tr
}

func (h *Harness) check(ctx context.Context, tc TestCase) TestResult {
	h.mu.RLock()
	timeout, verify, c := h.timeout, h.verify || tc.Verify, h.cache
	h.mu.RUnlock()

	holder, err := patterntext.Parse(tc.Pattern)
	if err != nil {
		return TestResult{Status: StatusError, Error: err.Error()}
	}
	bindings, err := resolveBindings(holder, tc.Bind)
	if err != nil {
		return TestResult{Status: StatusError, Error: err.Error()}
	}

	var access match.Access[indexed.NodeID] = indexed.NewAccess(h.graph, nil)
	if c != nil {
		access = cache.NewAccess(access, c)
	}
	engine, err := match.New(holder, match.Strategies[indexed.NodeID]{
		Access:    access,
		Evaluator: match.NewChecker[indexed.NodeID](holder, h.graph.Policy()),
	}, match.WithTimeout(timeout))
	if err != nil {
		return TestResult{Status: StatusError, Error: err.Error()}
	}

	res, checkErr := engine.CheckWithBindings(ctx, bindings)
	if res == nil {
		return TestResult{Status: StatusError, Error: checkErr.Error()}
	}
	tr := TestResult{
		MatchStatus: res.Status.String(),
		Rows:        h.externalRows(res.Rows),
		Stats:       res.Stats,
	}
	if checkErr != nil {
		tr.Error = checkErr.Error()
	}

	want := tc.ExpectStatus
	if want == "" {
		want = match.StatusCompleted.String()
	}
	if tr.MatchStatus != want {
		tr.Status = verdictFor(res.Status)
		if tr.Error == "" {
			tr.Error = fmt.Sprintf("expected %s, got %s", want, tr.MatchStatus)
		}
		return tr
	}
	if res.Status != match.StatusCompleted {
		tr.Status = StatusPass
		return tr
	}

	if tc.Expect != nil && !sameRows(tr.Rows, tc.Expect) {
		tr.Status = StatusFail
		tr.Error = fmt.Sprintf("expected %d rows, got %d", len(tc.Expect), len(tr.Rows))
		return tr
	}
	if verify {
		refCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			refCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ref, err := reference.Enumerate(refCtx, holder, h.graph, bindings)
		if err != nil {
			tr.Status = StatusError
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				tr.Status = StatusKilled
			}
			tr.Error = fmt.Sprintf("reference: %v", err)
			return tr
		}
		tr.Reference = h.externalRows(ref)
		if !sameRows(tr.Rows, tr.Reference) {
			tr.Status = StatusFail
			tr.Error = fmt.Sprintf("engine returned %d rows, reference %d", len(tr.Rows), len(tr.Reference))
			return tr
		}
	}
	tr.Status = StatusPass
	return tr
}

// verdictFor maps an unexpected engine outcome to a case status.
func verdictFor(s match.Status) CaseStatus {
	switch s {
	case match.StatusCompleted:
		return StatusFail
	case match.StatusKilled:
		return StatusKilled
	case match.StatusNotStarted:
		return StatusNotStarted
	default:
		return StatusError
	}
}

func resolveBindings(h *pattern.Holder, bind map[string]string) (map[*pattern.Node]string, error) {
	if len(bind) == 0 {
		return nil, nil
	}
	out := make(map[*pattern.Node]string, len(bind))
	for name, id := range bind {
		n, ok := h.Graph().Node(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", patterntext.ErrUnknownVariable, name)
		}
		out[n] = id
	}
	return out, nil
}

// externalRows converts rows to external ids, sorted.
func (h *Harness) externalRows(rows [][]indexed.NodeID) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		ext := make([]string, len(row))
		for j, n := range row {
			ext[j] = h.graph.ExternalID(n)
		}
		out[i] = ext
	}
	slices.SortFunc(out, compareRows)
	return out
}

// sameRows compares row sets regardless of order.
func sameRows(got, want [][]string) bool {
	if len(got) != len(want) {
		return false
	}
	a := slices.Clone(got)
	b := slices.Clone(want)
	slices.SortFunc(a, compareRows)
	slices.SortFunc(b, compareRows)
	return slices.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

func compareRows(a, b []string) int { return slices.Compare(a, b) }
