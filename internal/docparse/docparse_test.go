package docparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `# ROC Curve Study

Intro paragraph describing the study. See Figure 1 and Table 2.

## Methods

We trained a classifier. Figure 2 shows the pipeline.

### Cross-validation

Five folds were used.

## Results

AUC was 0.93 as shown in Table 1.
`

func TestParseSections(t *testing.T) {
	doc := Parse("study.md", sample)
	require.Equal(t, "ROC Curve Study", doc.Title)
	require.Equal(t, 2, doc.Figures)
	require.Equal(t, 2, doc.Tables)
	require.Len(t, doc.Sections, 4)
	require.Equal(t, "Methods", doc.Sections[1].Title)
	require.Equal(t, 2, doc.Sections[1].Level)
	require.Equal(t, 3, doc.Sections[2].Level)
	require.Equal(t, 3, MaxNestingDepth(doc))
}

func TestParseNumberedHeadings(t *testing.T) {
	doc := Parse("plain.txt", "1. Introduction\nbody text here\n2.1 Design\nmore body\n")
	require.Len(t, doc.Sections, 2)
	require.Equal(t, 1, doc.Sections[0].Level)
	require.Equal(t, 2, doc.Sections[1].Level)
}

func TestParseEmpty(t *testing.T) {
	doc := Parse("empty.txt", "   ")
	require.Empty(t, doc.Sections)
	require.Empty(t, doc.Text())
}

func TestTopLevelSectionsFoldSubsections(t *testing.T) {
	doc := Parse("study.md", sample)
	tops := TopLevelSections(doc)
	require.Len(t, tops, 3)
	require.Equal(t, "Methods", tops[1].Title)
	require.Contains(t, tops[1].Content, "Five folds were used.")
}

func TestTopLevelSectionsKeepShallowestLevel(t *testing.T) {
	doc := Parse("notes.md", "# Setup\n\nMix reagents.\n\n# Measurement\n\nRecord values.\n\n## Calibration\n\nZero the instrument.\n")
	tops := TopLevelSections(doc)
	require.Len(t, tops, 2)
	require.Equal(t, "Setup", tops[0].Title)
	require.Contains(t, tops[1].Content, "Zero the instrument.")
}

func TestTextRoundTrip(t *testing.T) {
	doc := Parse("study.md", sample)
	text := doc.Text()
	require.Contains(t, text, "ROC Curve Study")
	require.Contains(t, text, "AUC was 0.93")
}
