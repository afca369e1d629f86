package diagram

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

var asciiTags = map[string]string{
	StatusCompiled:   "[OK]",
	StatusFailed:     "[FAIL]",
	StatusNotReached: "[--]",
}

// RenderASCII draws one row of boxes per scheduling level, joined by arrows,
// then lists every wire.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		var row [][]string
		for _, id := range level {
			if n := model.node(id); n != nil {
				row = append(row, boxLines(n))
			}
		}
		if len(row) == 0 {
			continue
		}
		writeRow(&b, row)
		if i < len(model.Levels)-1 {
			b.WriteString("       │\n       ▼\n")
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nwires:\n")
		for _, e := range model.Edges {
			fmt.Fprintf(&b, "  %s ─→ %s  (%s)\n", e.From, e.To, e.Label)
		}
	}
	return b.String()
}

// boxLines returns the framed text of a node: label, status tag and the
// identifiers bound to its outputs.
func boxLines(n *Node) []string {
	body := []string{n.Label}
	if st := n.Status; st != nil {
		if tag, ok := asciiTags[st.Status]; ok {
			body = append(body, tag)
		}
		for _, port := range slices.Sorted(maps.Keys(st.Outputs)) {
			body = append(body, port+"="+st.Outputs[port])
		}
	}

	inner := 0
	for _, s := range body {
		inner = max(inner, utf8.RuneCountInString(s))
	}
	edge := strings.Repeat("─", inner+2)

	out := make([]string, 0, len(body)+2)
	out = append(out, "┌"+edge+"┐")
	for _, s := range body {
		out = append(out, "│ "+s+strings.Repeat(" ", inner-utf8.RuneCountInString(s))+" │")
	}
	return append(out, "└"+edge+"┘")
}

// writeRow prints boxes side by side, padding shorter ones with blanks.
func writeRow(b *strings.Builder, boxes [][]string) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box))
	}
	for r := range height {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if r < len(box) {
				b.WriteString(box[r])
			} else {
				b.WriteString(strings.Repeat(" ", utf8.RuneCountInString(box[0])))
			}
		}
		b.WriteByte('\n')
	}
}
