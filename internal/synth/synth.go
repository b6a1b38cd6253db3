package synth

import (
	"sort"
	"strings"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// MaxSynonyms bounds the synonym set per command
const MaxSynonyms = 5

// Candidate is one generated command before persistence
type Candidate struct {
	Text       string
	Action     types.Action
	Confidence float64
	Synonyms   []string
}

// Result is everything the synthesizer infers for one element
type Result struct {
	Role      types.Role
	Action    types.Action
	InputType string
	Commands  []Candidate
}

// verbsByAction maps each action to its primary verb and synonym verbs
var verbsByAction = map[types.Action]struct {
	primary  string
	synonyms []string
}{
	types.ActionClick:     {"tap", []string{"click", "press"}},
	types.ActionLongClick: {"long press", []string{"hold", "long click"}},
	types.ActionType:      {"type in", []string{"enter", "fill in"}},
	types.ActionScroll:    {"scroll", []string{"swipe"}},
	types.ActionFocus:     {"focus", []string{"go to"}},
	types.ActionCheck:     {"check", []string{"tick", "enable"}},
	types.ActionUncheck:   {"uncheck", []string{"untick", "disable"}},
	types.ActionSelect:    {"select", []string{"choose", "pick"}},
}

// Synthesize infers role, action and input type for an element and produces
// its command set. Pure: identical attrs always yield the identical result,
// which is what makes re-synthesis upsert cleanly downstream.
func Synthesize(a types.ElementAttrs) Result {
	role, weight := InferRole(a)
	res := Result{Role: role, InputType: InferInputType(a)}

	action, ok := InferAction(a, role)
	if !ok {
		return res // labels and inert containers get no commands
	}
	res.Action = action

	label, quality := commandLabel(a)
	if label == "" {
		return res
	}

	verbs := verbsByAction[action]
	primary := verbs.primary + " " + label

	synonyms := make([]string, 0, MaxSynonyms)
	for _, v := range verbs.synonyms {
		synonyms = append(synonyms, v+" "+label)
	}
	// the bare label itself is a usable spoken form for click-like actions
	if action == types.ActionClick || action == types.ActionSelect {
		synonyms = append(synonyms, label)
	}
	if len(synonyms) > MaxSynonyms {
		synonyms = synonyms[:MaxSynonyms]
	}

	res.Commands = append(res.Commands, Candidate{
		Text:       primary,
		Action:     action,
		Confidence: clamp(weight * quality),
		Synonyms:   synonyms,
	})
	return res
}

// commandLabel picks the spoken label for an element and scores its quality.
// Visible text beats the accessibility label beats a humanized resource id.
func commandLabel(a types.ElementAttrs) (string, float64) {
	if words := labelWords(a.Text); len(words) > 0 {
		quality := 0.75
		if distinctive(words) {
			quality = 1.0
		}
		return strings.Join(clipWords(words), " "), quality
	}
	if words := labelWords(a.Label); len(words) > 0 {
		quality := 0.7
		if distinctive(words) {
			quality = 0.85
		}
		return strings.Join(clipWords(words), " "), quality
	}
	if words := resourceWords(a.ResourceID); len(words) > 0 && distinctive(words) {
		return strings.Join(clipWords(words), " "), 0.55
	}
	return "", 0
}

// clipWords bounds the label to its first few words so phrases stay speakable
func clipWords(words []string) []string {
	const maxLabelWords = 6
	if len(words) > maxLabelWords {
		return words[:maxLabelWords]
	}
	return words
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// screenTypeKeywords classify a screen from its stable title and activity,
// checked in order
var screenTypeKeywords = []struct {
	keyword    string
	screenType string
}{
	{"login", "login"},
	{"sign in", "login"},
	{"signin", "login"},
	{"register", "form"},
	{"sign up", "form"},
	{"settings", "settings"},
	{"preferences", "settings"},
	{"search", "search"},
	{"checkout", "form"},
	{"compose", "form"},
	{"browser", "browser"},
	{"home", "home"},
	{"main", "home"},
}

// InferScreenType classifies a screen from its title/activity plus the role
// mix observed during the scrape.
func InferScreenType(title, activity string, roleCounts map[types.Role]int) string {
	hay := strings.ToLower(title + " " + activity)
	for _, k := range screenTypeKeywords {
		if strings.Contains(hay, k.keyword) {
			return k.screenType
		}
	}
	if roleCounts[types.RoleInput] >= 2 {
		return "form"
	}
	if roleCounts[types.RoleContainer] > 0 && roleCounts[types.RoleLabel] > roleCounts[types.RoleButton] {
		return "list"
	}
	return "unknown"
}

// PrimaryAction picks the highest-confidence command text on a screen
func PrimaryAction(cands []Candidate) string {
	if len(cands) == 0 {
		return ""
	}
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	return sorted[0].Text
}
