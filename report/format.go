package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pb33f/pagecycle/motor/model"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHAR  Format = "har"
)

// HARCreator names the harness in exported HAR documents.
var HARCreator = "pagecycle"

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatHAR:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or har)", s)
	}
}

// Write serializes rep to w.
func Write(w io.Writer, rep *model.Report, f Format) error {
	switch f {
	case FormatText, "":
		return WriteText(w, rep)
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatHAR:
		return WriteHAR(w, rep)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteText writes the line oriented tp report.
func WriteText(w io.Writer, rep *model.Report) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("__start_tp_report\n")
	bw.WriteString("_x_x_mozilla_page_load\n")
	bw.WriteString("_x_x_mozilla_page_load_details\n")
	bw.WriteString("|i|pagename|runs|\n")

	for i, p := range rep.Pages {
		runs := make([]string, len(p.Samples))
		for j, s := range p.Samples {
			runs[j] = formatMs(s.ElapsedMs)
		}
		fmt.Fprintf(bw, "|%d;%s;%s\n", i, p.DisplayName, strings.Join(runs, ";"))
	}
	bw.WriteString("__end_tp_report\n")

	if rep.HasCycleCollection {
		bw.WriteString("__start_cc_report\n")
		fmt.Fprintf(bw, "_x_x_mozilla_cycle_collect,%s\n", formatMs(rep.CycleCollectionMs))
		bw.WriteString("__end_cc_report\n")
	}
	fmt.Fprintf(bw, "__startTimestamp%d__endTimestamp\n", completedAt(rep).UnixMilli())

	return bw.Flush()
}

// Run is one sample in the JSON results document, in epoch milliseconds.
type Run struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Total float64 `json:"total"`
}

type PageMeta struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Summary     Summary `json:"summary"`
}

type Meta struct {
	Fingerprint       string     `json:"fingerprint,omitempty"`
	Cycles            int        `json:"cycles"`
	CycleCollectionMs *float64   `json:"cycleCollectionMs,omitempty"`
	StartedAt         int64      `json:"startedAt,omitempty"`
	CompletedAt       int64      `json:"completedAt"`
	Pages             []PageMeta `json:"pages"`
}

// Document is the JSON results document: the runs of every page keyed by
// page name, plus a _meta object.
type Document struct {
	Pages map[string][]Run
	Meta  Meta
}

const metaKey = "_meta"

func NewDocument(rep *model.Report) *Document {
	doc := &Document{
		Pages: make(map[string][]Run, len(rep.Pages)),
		Meta: Meta{
			Fingerprint: rep.Fingerprint,
			Cycles:      rep.Cycles,
			CompletedAt: completedAt(rep).UnixMilli(),
		},
	}
	if !rep.StartedAt.IsZero() {
		doc.Meta.StartedAt = rep.StartedAt.UnixMilli()
	}
	if rep.HasCycleCollection {
		cc := rep.CycleCollectionMs
		doc.Meta.CycleCollectionMs = &cc
	}

	for _, p := range rep.Pages {
		runs := make([]Run, len(p.Samples))
		for i, s := range p.Samples {
			runs[i] = Run{Start: unixMs(s.Start), Stop: unixMs(s.Stop), Total: s.ElapsedMs}
		}
		doc.Pages[p.Name] = runs
		doc.Meta.Pages = append(doc.Meta.Pages, PageMeta{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Summary:     Summarize(p.Elapsed()),
		})
	}
	return doc
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Pages)+1)
	for name, runs := range d.Pages {
		out[name] = runs
	}
	out[metaKey] = d.Meta
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Pages = make(map[string][]Run, len(raw))
	for key, value := range raw {
		if key == metaKey {
			if err := json.Unmarshal(value, &d.Meta); err != nil {
				return fmt.Errorf("%s: %w", metaKey, err)
			}
			continue
		}
		var runs []Run
		if err := json.Unmarshal(value, &runs); err != nil {
			return fmt.Errorf("page %q: %w", key, err)
		}
		d.Pages[key] = runs
	}

	// documents without _meta still summarize
	if len(d.Meta.Pages) == 0 {
		for name, runs := range d.Pages {
			totals := make([]float64, len(runs))
			for i, r := range runs {
				totals[i] = r.Total
			}
			d.Meta.Pages = append(d.Meta.Pages, PageMeta{Name: name, DisplayName: name, Summary: Summarize(totals)})
		}
	}
	return nil
}

func WriteJSON(w io.Writer, rep *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(rep))
}

func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &doc, nil
}

// NewHAR exports every sample as a HAR page.
func NewHAR(rep *model.Report) *model.HAR {
	har := model.NewHAR(HARCreator, "")
	for i, p := range rep.Pages {
		title := p.DisplayName
		if title == "" {
			title = p.Name
		}
		for _, s := range p.Samples {
			har.Log.Pages = append(har.Log.Pages, model.Page{
				Start:       s.Start.Format(time.RFC3339Nano),
				ID:          fmt.Sprintf("page_%d_%d", i, s.Cycle),
				Title:       title,
				PageTimings: model.PageTiming{OnLoad: s.ElapsedMs},
				Comment:     p.Name,
			})
		}
	}
	return har
}

func WriteHAR(w io.Writer, rep *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewHAR(rep))
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unixMs(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro()) / 1000
}

func completedAt(rep *model.Report) time.Time {
	if rep.CompletedAt.IsZero() {
		return time.Now()
	}
	return rep.CompletedAt
}
