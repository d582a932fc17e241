package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	web     string
)

var errReportFailed = errors.New("some of test cases failed")

var reportCmd = &cobra.Command{
	Use:   "report <index.json>",
	Short: "Summarise fuzzing server reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if web != "" {
			return serveReports(web, path.Dir(args[0]))
		}
		failed, err := summarise(cmd.ErrOrStderr(), args[0], verbose)
		if err != nil {
			return err
		}
		if failed {
			return errReportFailed
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&verbose, "verbose", false, "print every case, not only failed ones")
	reportCmd.Flags().StringVar(&web, "http", "", "serve report files over http on given address instead")
}

// Case behaviors reported by the fuzzing server, in the order they are
// printed.
const (
	statusOK            = "OK"
	statusInformational = "INFORMATIONAL"
	statusUnimplemented = "UNIMPLEMENTED"
	statusNonStrict     = "NON-STRICT"
	statusUnclean       = "UNCLEAN"
	statusFailed        = "FAILED"
)

var statuses = []string{
	statusOK,
	statusInformational,
	statusUnimplemented,
	statusNonStrict,
	statusUnclean,
	statusFailed,
}

func failing(behavior string) bool {
	switch behavior {
	case statusUnclean, statusFailed, statusNonStrict:
		return true
	}
	return false
}

// statusCounter counts cases per behavior.
type statusCounter map[string]int

func (c statusCounter) Inc(s string) error {
	if !slices.Contains(statuses, s) {
		return fmt.Errorf("unexpected status %q", s)
	}
	c[s]++
	return nil
}

func (c statusCounter) Total() (n int) {
	for _, x := range c {
		n += x
	}
	return n
}

// index is the fuzzing server report index: cases by id, per agent.
type index map[string]map[string]indexEntry

type indexEntry struct {
	Behavior   string `json:"behavior"`
	ReportFile string `json:"reportFile"`
}

type caseReport struct {
	Description string `json:"description"`
	Expectation string `json:"expectation"`
	Result      string `json:"result"`
}

type caseResult struct {
	id       string
	behavior string
	report   caseReport
}

type agentSummary struct {
	agent   string
	results []caseResult
	counter statusCounter
	failed  bool
}

// summarise prints per agent summary of the report index to w. It reports
// whether any case has failed.
func summarise(w io.Writer, indexPath string, verbose bool) (failed bool, err error) {
	var idx index
	if err := decodeFile(indexPath, &idx); err != nil {
		return false, err
	}
	agents := make([]string, 0, len(idx))
	for a := range idx {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, agent := range agents {
		s, err := loadSummary(path.Dir(indexPath), agent, idx[agent])
		if err != nil {
			return false, err
		}
		s.print(tw, verbose)
		failed = failed || s.failed
	}
	result := statusOK
	if failed {
		result = statusFailed
	}
	fmt.Fprintf(tw, "\nTEST %s\n", result)
	return failed, tw.Flush()
}

func loadSummary(base, agent string, cases map[string]indexEntry) (agentSummary, error) {
	s := agentSummary{
		agent:   agent,
		counter: make(statusCounter),
	}
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	if err := sortBySegment(ids); err != nil {
		return s, err
	}
	for _, id := range ids {
		e := cases[id]
		if err := s.counter.Inc(e.Behavior); err != nil {
			return s, fmt.Errorf("case %s: %w", id, err)
		}
		r := caseResult{id: id, behavior: e.Behavior}
		if err := decodeFile(path.Join(base, e.ReportFile), &r.report); err != nil {
			return s, err
		}
		s.failed = s.failed || failing(e.Behavior)
		s.results = append(s.results, r)
	}
	return s, nil
}

func (s agentSummary) print(w io.Writer, verbose bool) {
	var listed bool
	for _, r := range s.results {
		bad := failing(r.behavior)
		if !bad && !verbose {
			continue
		}
		if !listed {
			listed = true
			underline(w, fmt.Sprintf("AGENT %q", s.agent))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.agent, r.id, r.behavior)
		if bad {
			fmt.Fprintf(w, "\tdesc:\t%s\n", r.report.Description)
			fmt.Fprintf(w, "\texp: \t%s\n", r.report.Expectation)
			fmt.Fprintf(w, "\tact: \t%s\n", r.report.Result)
		}
	}
	if listed {
		fmt.Fprintln(w)
	}

	status := statusOK
	if s.failed {
		status = statusFailed
	}
	underline(w, fmt.Sprintf("AGENT %q SUMMARY (%s)", s.agent, status))
	fmt.Fprintf(w, "TOTAL:\t%d\n", s.counter.Total())
	for _, st := range statuses {
		fmt.Fprintf(w, "%s:\t%d\n", st, s.counter[st])
	}
	fmt.Fprintln(w)
}

func underline(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n%s\n", title, strings.Repeat("=", len(title)))
}

func decodeFile(path string, x any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(x)
}

// sortBySegment sorts case ids like "1.2.10" numerically segment by segment.
func sortBySegment(s []string) (err error) {
	slices.SortFunc(s, func(a, b string) int {
		c, e := compareBySegment(a, b)
		if e != nil && err == nil {
			err = e
		}
		return c
	})
	return err
}

func compareBySegment(a, b string) (int, error) {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < min(len(as), len(bs)); i++ {
		ax, err := strconv.Atoi(as[i])
		if err != nil {
			return 0, fmt.Errorf("malformed case id %q: %w", a, err)
		}
		bx, err := strconv.Atoi(bs[i])
		if err != nil {
			return 0, fmt.Errorf("malformed case id %q: %w", b, err)
		}
		if ax != bx {
			return ax - bx, nil
		}
	}
	return len(as) - len(bs), nil
}

// serveReports serves the report directory, which holds the fuzzing server
// generated index.html.
func serveReports(addr, dir string) error {
	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	log.Info("serving reports", zap.String("addr", addr), zap.String("dir", dir))
	return http.ListenAndServe(addr, logRequests(log, http.FileServer(http.Dir(dir))))
}

func logRequests(log *zap.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("request", zap.String("method", r.Method), zap.Stringer("url", r.URL))
		h.ServeHTTP(w, r)
	})
}
