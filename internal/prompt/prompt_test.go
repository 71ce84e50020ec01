package prompt

import (
	"strings"
	"testing"

	"github.com/kjstillabower/daymate-service/internal/models"
)

func TestWeatherSummary(t *testing.T) {
	tests := []struct {
		name string
		in   models.WeatherSnapshot
		want string
	}{
		{"clear no rain", models.WeatherSnapshot{Condition: "Clear", Temperature: 29.5}, "Clear, 29.5°C, precipitation_prob=0"},
		{"rain", models.WeatherSnapshot{Condition: "Rain", Temperature: 18, Precipitation: 1.25}, "Rain, 18°C, precipitation_prob=1.25"},
		{"negative", models.WeatherSnapshot{Condition: "Snow", Temperature: -3.2}, "Snow, -3.2°C, precipitation_prob=0"},
		{"missing condition", models.WeatherSnapshot{}, "Unknown, 0°C, precipitation_prob=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeatherSummary(tt.in); got != tt.want {
				t.Errorf("WeatherSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewsBlock(t *testing.T) {
	tests := []struct {
		name      string
		headlines []string
		want      string
	}{
		{"empty", nil, NoHeadlines},
		{"only blanks", []string{"", ""}, NoHeadlines},
		{"two", []string{"Flood warning", "Metro opens"}, "- Flood warning\n- Metro opens"},
		{"more than five", []string{"a", "b", "c", "d", "e", "f", "g"}, "- a\n- b\n- c\n- d\n- e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewsBlock(models.NewsDigest{Headlines: tt.headlines}); got != tt.want {
				t.Errorf("NewsBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	w := models.WeatherSnapshot{Condition: "Clouds", Temperature: 21.4, Precipitation: 0.2}
	d := models.NewsDigest{Headlines: []string{"one", "two"}}
	p := models.Preferences{"wake": "7am", "activities": []interface{}{"run", "read"}, "budget": 20, "diet": nil}

	first := Build(w, d, p)
	for i := 0; i < 20; i++ {
		if got := Build(w, d, p); got != first {
			t.Fatalf("Build() not deterministic:\n%s\n---\n%s", first, got)
		}
	}
	if !strings.Contains(first, `User preferences: {"activities":["run","read"],"budget":20,"diet":null,"wake":"7am"}`) {
		t.Errorf("preferences not rendered verbatim:\n%s", first)
	}
}

func TestBuild_ScenarioContents(t *testing.T) {
	got := Build(models.WeatherSnapshot{Condition: "Clear", Temperature: 29.5}, models.NewsDigest{}, nil)

	for _, want := range []string{
		"Weather summary: Clear, 29.5°C, precipitation_prob=0\n",
		"Top news:\nNo major headlines.\n",
		"User preferences: {}\n",
		`"priority_actions"`, `"suggestions"`, `"rationale"`, `"quick_tips"`, `"summary"`,
		"valid JSON object only",
		"Do not include any commentary outside the JSON.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Build() missing %q in:\n%s", want, got)
		}
	}
}

func TestBuild_PreferencesNotHTMLEscaped(t *testing.T) {
	p := models.Preferences{"music": "rock & roll <live>"}
	got := Build(models.WeatherSnapshot{Condition: "Clear"}, models.NewsDigest{}, p)
	want := `User preferences: {"music":"rock & roll <live>"}` + "\n"
	if !strings.Contains(got, want) {
		t.Errorf("Build() preferences line mangled:\n%s", got)
	}
}
