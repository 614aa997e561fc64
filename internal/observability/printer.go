package observability

import (
	"fmt"
	"io"
	"strings"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxTokensToShow is the default number of file tokens to display
	maxTokensToShow = 8
)

// Printer handles formatted output for verbose CLI mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// IdentitySummary is what PrintIdentity renders; filled from the
// bootstrap result.
type IdentitySummary struct {
	RunID           string
	FullConfigHash  string
	DataFingerprint string
	ArtifactRoot    string
	SnapshotURI     string
}

// PrintIdentity outputs a human-readable summary of the derived run identity.
func (p *Printer) PrintIdentity(id *IdentitySummary) {
	if id == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run ID:        %s\n", id.RunID))
	sb.WriteString(fmt.Sprintf("Full hash:     %s\n", id.FullConfigHash))
	if id.DataFingerprint != "" {
		sb.WriteString(fmt.Sprintf("Fingerprint:   %s\n", id.DataFingerprint))
	} else {
		sb.WriteString("Fingerprint:   (none)\n")
	}
	sb.WriteString(fmt.Sprintf("Artifact root: %s", id.ArtifactRoot))
	if id.SnapshotURI != "" {
		sb.WriteString(fmt.Sprintf("\nSnapshot:      %s", id.SnapshotURI))
	}

	p.printBox("RUN IDENTITY", sb.String())
}

// TokenLine is one row of the fingerprint audit: the file, the strategy
// that resolved it, and its size.
type TokenLine struct {
	Path     string
	Strategy string
	Size     int64
}

// PrintFingerprintAudit outputs which strategy resolved each file token.
func (p *Printer) PrintFingerprintAudit(digest string, tokens []TokenLine) {
	if len(tokens) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Digest: %s\n", digest))
	sb.WriteString(fmt.Sprintf("Files:  %d\n\n", len(tokens)))

	count := min(len(tokens), maxTokensToShow)
	for i := 0; i < count; i++ {
		t := tokens[i]
		path := t.Path
		if len(path) > 44 {
			path = "..." + path[len(path)-41:]
		}
		sb.WriteString(fmt.Sprintf("• %-44s  %s (%d bytes)", path, t.Strategy, t.Size))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(tokens) > maxTokensToShow {
		sb.WriteString(fmt.Sprintf("\n\n... and %d more files", len(tokens)-maxTokensToShow))
	}

	p.printBox("DATA FINGERPRINT", sb.String())
}

// PrintGateDecision outputs the idempotence gate outcome.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintGateDecision(decision string, shortCircuit bool, reason string) {
	if shortCircuit {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ VALID CACHED RUN (skipping pipeline)")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Decision: %s\n", decision))
	if reason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", reason))
	}
	sb.WriteString("Proceeding with fresh run")

	p.printBox("IDEMPOTENCE GATE", sb.String())
}
