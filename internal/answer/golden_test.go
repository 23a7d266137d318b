package answer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type goldenCase struct {
	Name      string `yaml:"name"`
	Text      string `yaml:"text"`
	Citations []struct {
		ID       string `yaml:"id"`
		Filepath string `yaml:"filepath"`
	} `yaml:"citations"`
	Want struct {
		Text    string   `yaml:"text"`
		Sources []string `yaml:"sources"` // original ids, in output order
		Parts   []int    `yaml:"parts"`
	} `yaml:"want"`
}

func loadGoldenCases(t *testing.T) []goldenCase {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "rewrite_cases.yaml"))
	require.NoError(t, err)

	var cases []goldenCase
	require.NoError(t, yaml.Unmarshal(data, &cases))
	require.NotEmpty(t, cases)
	return cases
}

func TestParseAnswer_Golden(t *testing.T) {
	for _, gc := range loadGoldenCases(t) {
		t.Run(gc.Name, func(t *testing.T) {
			citations := make([]Citation, 0, len(gc.Citations))
			for _, c := range gc.Citations {
				// keep the original id in Content so the output can be traced back
				citations = append(citations, Citation{ID: c.ID, SourcePath: c.Filepath, Content: c.ID})
			}

			parsed, err := ParseAnswer(NewPayload(gc.Text, citations))
			require.NoError(t, err)
			assert.Equal(t, gc.Want.Text, parsed.FormattedText)

			sources := make([]string, 0, len(parsed.Citations))
			parts := make([]int, 0, len(parsed.Citations))
			for i, c := range parsed.Citations {
				sources = append(sources, c.Content)
				parts = append(parts, c.PartIndex)
				assert.Equal(t, itoa(i+1), c.ID)
				assert.Equal(t, Some(c.ID), c.ReindexID)
			}
			if len(gc.Want.Sources) == 0 {
				assert.Empty(t, sources)
			} else {
				assert.Equal(t, gc.Want.Sources, sources)
				assert.Equal(t, gc.Want.Parts, parts)
			}
		})
	}
}
