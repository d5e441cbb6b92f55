package generate

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

const previewWidth = 60

// ProgressTracker accumulates counts across a run and renders the progress
// lines and the final summary.
type ProgressTracker struct {
	out      io.Writer
	target   int
	width    int // terminal width, 0 when not a terminal
	counts   map[string]int
	rejected map[string]int
	errors   int
	attempts int
}

// NewProgressTracker creates a tracker writing to out for a run of target records.
func NewProgressTracker(out io.Writer, target int) *ProgressTracker {
	pt := &ProgressTracker{
		out:      out,
		target:   target,
		counts:   make(map[string]int),
		rejected: make(map[string]int),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			pt.width = w
		}
	}
	return pt
}

// Seed loads counts carried over from a previous run.
func (pt *ProgressTracker) Seed(counts map[string]int) {
	for k, v := range counts {
		pt.counts[k] += v
	}
}

// Attempt records one synthesis attempt.
func (pt *ProgressTracker) Attempt() { pt.attempts++ }

// Error records a failed synthesis call.
func (pt *ProgressTracker) Error() { pt.errors++ }

// Reject records a candidate dropped by the filter.
func (pt *ProgressTracker) Reject(reason string) { pt.rejected[reason]++ }

// Counts returns the per-key accepted counts.
func (pt *ProgressTracker) Counts() map[string]int {
	out := make(map[string]int, len(pt.counts))
	for k, v := range pt.counts {
		out[k] = v
	}
	return out
}

func (pt *ProgressTracker) pct(n int) float64 {
	if pt.target == 0 {
		return 0
	}
	return float64(n) / float64(pt.target) * 100
}

// preview shortens an instruction so the progress line fits on one
// terminal row.
func (pt *ProgressTracker) preview(prefix, instruction string) string {
	s := strings.ReplaceAll(instruction, "\n", " ")
	limit := previewWidth
	if pt.width > 0 {
		if room := pt.width - len(prefix) - 3; room < limit {
			limit = room
		}
	}
	if limit < 10 {
		limit = 10
	}
	runes := []rune(s)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// Accepted counts a record under pattern and prints the multi-tool progress
// line: "N/T (pct%) [pattern] - preview...".
func (pt *ProgressTracker) Accepted(total int, pattern, instruction string) {
	pt.counts[pattern]++
	prefix := fmt.Sprintf("%d/%d (%.1f%%) [%s] - ", total, pt.target, pt.pct(total), pattern)
	fmt.Fprintf(pt.out, "%s%s...\n", prefix, pt.preview(prefix, instruction))
}

// AcceptedTool counts a record under tool and prints the single-tool
// progress line.
func (pt *ProgressTracker) AcceptedTool(total int, tool, instruction string) {
	pt.counts[tool]++
	prefix := fmt.Sprintf("[%2d/%d] %5.1f%% | %-30s | ", total, pt.target, pt.pct(total), tool)
	fmt.Fprintf(pt.out, "%s%s...\n", prefix, pt.preview(prefix, instruction))
}

// Distribution renders counts in the given key order, e.g.
// "modify>modify=3, modify>inspect=2".
func (pt *ProgressTracker) Distribution(order []string) string {
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", k, pt.counts[k]))
	}
	return strings.Join(parts, ", ")
}

// Summary renders the end-of-run report.
func (pt *ProgressTracker) Summary(res *Result, order []string) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Generated %d/%d (%.1f%%)", res.Total(), res.Target, pt.pct(res.Total()))
	if res.Finalized > 0 {
		fmt.Fprintf(&sb, " | %d finalized + %d new", res.Finalized, res.Generated)
	}
	sb.WriteString("\n")

	var items []string
	if pt.attempts > 0 {
		items = append(items, fmt.Sprintf("%d attempts", pt.attempts))
	}
	if n := pt.totalRejected(); n > 0 {
		items = append(items, fmt.Sprintf("%d rejected (%s)", n, pt.rejectionBreakdown()))
	}
	if pt.errors > 0 {
		items = append(items, fmt.Sprintf("%d errors", pt.errors))
	}
	if res.LLMCalls > 0 {
		items = append(items, fmt.Sprintf("%d llm calls", res.LLMCalls))
	}
	if len(items) > 0 {
		sb.WriteString(strings.Join(items, ", "))
		sb.WriteString("\n")
	}

	if len(order) > 0 {
		sb.WriteString("Distribution:\n")
		total := 0
		for _, k := range order {
			total += pt.counts[k]
		}
		for _, k := range order {
			share := 0.0
			if total > 0 {
				share = float64(pt.counts[k]) / float64(total) * 100
			}
			fmt.Fprintf(&sb, "  %-30s: %3d (%5.1f%%)\n", k, pt.counts[k], share)
		}
	}

	if res.Shortfall > 0 {
		fmt.Fprintf(&sb, "Shortfall: %d (%s)\n", res.Shortfall, res.StopReason)
	} else if res.StopReason != "" {
		fmt.Fprintf(&sb, "Stopped: %s\n", res.StopReason)
	}
	return sb.String()
}

func (pt *ProgressTracker) totalRejected() int {
	n := 0
	for _, v := range pt.rejected {
		n += v
	}
	return n
}

func (pt *ProgressTracker) rejectionBreakdown() string {
	keys := make([]string, 0, len(pt.rejected))
	for k := range pt.rejected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, pt.rejected[k])
	}
	return strings.Join(parts, ", ")
}
