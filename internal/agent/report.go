// Package agent provides external agent invocation and output parsing.
// Agents are opaque commands; the core only reads a small extraction
// contract from their output: a completion marker, a confidence marker, and
// bullet-line findings, or preferably one structured report line.
package agent

import (
	"bufio"
	"encoding/json"
	"strconv"
	"strings"
)

// reportPrefix introduces the structured report line an agent can emit as
// its explicit output contract.
const reportPrefix = "DROVER_REPORT:"

// DefaultConfidence is assumed when an agent's output carries no parseable
// confidence.
const DefaultConfidence = 5.0

// crashMarkers are fatal markers anywhere in output. Matching is exact on
// the trimmed line prefix to avoid tripping on agents quoting these words.
var crashMarkers = []string{
	"FATAL:",
	"AGENT CRASHED",
	"panic:",
}

// indicatorPhrases are completion-indicator phrases counted for the
// dual-condition completion check. A lone phrase never completes a run; the
// explicit completion marker must also be present.
var indicatorPhrases = []string{
	"task complete",
	"all done",
	"finished",
	"implementation complete",
	"nothing left to do",
}

// Report is the parsed view of an agent's output.
type Report struct {
	// Complete is true when the explicit completion marker was found.
	Complete bool
	// Indicators counts completion-indicator phrases seen in the output.
	Indicators int
	// Crashed is true when a fatal marker was found.
	Crashed bool
	// Confidence is the agent's self-reported confidence, 0-10.
	Confidence float64
	// Findings holds the structured finding strings.
	Findings []string
	// Structured is true when a well-formed DROVER_REPORT line was found.
	// Structured completion stands on its own and needs no indicator count.
	Structured bool
	// Unparsed is true when the output met neither the structured contract
	// nor the fallback extraction contract. Confidence is the sentinel
	// default in that case.
	Unparsed bool
}

// structuredReport is the JSON payload of a DROVER_REPORT line.
type structuredReport struct {
	Complete   bool     `json:"complete"`
	Confidence *float64 `json:"confidence"`
	Findings   []string `json:"findings"`
}

// ParseReport extracts the output contract from raw agent output.
// A structured DROVER_REPORT line wins; otherwise the fallback extraction
// contract applies (completion marker, CONFIDENCE: n, bullet findings).
// completionMarker is the explicit marker configured for this deployment.
func ParseReport(output, completionMarker string) Report {
	rep := Report{Confidence: DefaultConfidence}
	sawContract := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		for _, m := range crashMarkers {
			if strings.HasPrefix(line, m) {
				rep.Crashed = true
			}
		}

		if rest, ok := strings.CutPrefix(line, reportPrefix); ok {
			var sr structuredReport
			if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &sr); err == nil {
				rep.Complete = rep.Complete || sr.Complete
				if sr.Confidence != nil {
					rep.Confidence = clampConfidence(*sr.Confidence)
				}
				rep.Findings = append(rep.Findings, sr.Findings...)
				rep.Structured = true
				sawContract = true
				continue
			}
			// A malformed report line is not silently repaired.
			rep.Unparsed = true
			continue
		}

		if completionMarker != "" && strings.Contains(line, completionMarker) {
			rep.Complete = true
			sawContract = true
		}

		lower := strings.ToLower(line)
		for _, p := range indicatorPhrases {
			if strings.Contains(lower, p) {
				rep.Indicators++
				break
			}
		}

		if rest, ok := strings.CutPrefix(line, "CONFIDENCE:"); ok {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64); err == nil {
				rep.Confidence = clampConfidence(v)
				sawContract = true
			}
			continue
		}

		if f, ok := bulletFinding(line); ok {
			rep.Findings = append(rep.Findings, f)
			sawContract = true
		}
	}

	if !sawContract {
		rep.Unparsed = true
	}
	return rep
}

// bulletFinding extracts a finding from a bullet line ("- text" or "* text").
func bulletFinding(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			rest = strings.TrimSpace(rest)
			if rest != "" {
				return rest, true
			}
		}
	}
	return "", false
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
