// Package prompt composes the completion request for a daily plan.
package prompt

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// NoHeadlines is rendered in place of the news list when the digest is empty.
const NoHeadlines = "No major headlines."

// MaxHeadlines bounds the news block.
const MaxHeadlines = 5

const header = `You are DayMate, an AI assistant that creates a daily plan for the user.
Use the following weather and news information to produce a **valid JSON object only**. Do not add any extra text outside the JSON.
`

const schema = `Return JSON with exactly the following keys:
{
  "priority_actions": ["example action 1", "example action 2"],
  "suggestions": ["example suggestion 1", "example suggestion 2"],
  "rationale": "short reason for the plan",
  "quick_tips": ["example tip 1", "example tip 2"],
  "summary": "one-sentence summary"
}

Make sure the JSON is valid and parsable. Do not include any commentary outside the JSON.
`

// Build renders the prompt. It is pure: equal inputs give byte-identical output.
func Build(weather models.WeatherSnapshot, digest models.NewsDigest, prefs models.Preferences) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\nWeather summary: ")
	b.WriteString(WeatherSummary(weather))
	b.WriteString("\nTop news:\n")
	b.WriteString(NewsBlock(digest))
	b.WriteString("\nUser preferences: ")
	b.WriteString(preferences(prefs))
	b.WriteString("\n\n")
	b.WriteString(schema)
	return b.String()
}

// WeatherSummary renders "{condition}, {temperature}°C, precipitation_prob={precipitation}".
func WeatherSummary(w models.WeatherSnapshot) string {
	condition := w.Condition
	if condition == "" {
		condition = models.UnknownCondition
	}
	return condition + ", " + formatNumber(w.Temperature) + "°C, precipitation_prob=" + formatNumber(w.Precipitation)
}

// NewsBlock renders one "- title" line per headline, or NoHeadlines.
func NewsBlock(digest models.NewsDigest) string {
	lines := make([]string, 0, MaxHeadlines)
	for _, h := range digest.Headlines {
		if len(lines) == MaxHeadlines {
			break
		}
		if h == "" {
			continue
		}
		lines = append(lines, "- "+h)
	}
	if len(lines) == 0 {
		return NoHeadlines
	}
	return strings.Join(lines, "\n")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// preferences renders the mapping as JSON. encoding/json sorts map keys, so
// the output is stable.
func preferences(p models.Preferences) string {
	if len(p) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
