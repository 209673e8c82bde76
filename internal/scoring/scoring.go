// Package scoring computes the dispatch priority of queued package builds.
package scoring

import "strings"

// Score adjustments applied on top of the pocket, component and urgency
// tables.
const (
	PrivateArchiveBonus = 10000
	CopyArchivePenalty  = 2600
)

// TranslationsSection is the section whose builds only get the archive's
// relative score.
const TranslationsSection = "translations"

// ScoreByPocket ranks pockets. PROPOSED and UPDATES share a score because
// both feed the same audience.
var ScoreByPocket = map[string]int{
	"BACKPORTS": 0,
	"RELEASE":   1500,
	"PROPOSED":  3000,
	"UPDATES":   3000,
	"SECURITY":  4500,
}

// ScoreByComponent ranks components. Unknown components score zero.
var ScoreByComponent = map[string]int{
	"multiverse": 0,
	"universe":   250,
	"restricted": 750,
	"main":       1000,
	"partner":    1250,
}

// ScoreByUrgency ranks source urgencies.
var ScoreByUrgency = map[string]int{
	"low":       5,
	"medium":    10,
	"high":      15,
	"emergency": 20,
}

// Input carries everything a score depends on.
type Input struct {
	Pocket             string
	Component          string
	Urgency            string
	Section            string
	ArchivePurpose     string
	ArchivePrivate     bool
	RelativeBuildScore int
	// PackagesetScores holds the relative scores of every packageset in
	// the build's series containing the source. Only main archives use
	// them.
	PackagesetScores []int
}

// Score returns the queue score for a build.
func Score(in Input) int {
	score := in.RelativeBuildScore
	if in.Section == TranslationsSection {
		return score
	}

	if in.ArchivePrivate {
		score += PrivateArchiveBonus
	}
	if in.ArchivePurpose == "COPY" {
		score -= CopyArchivePenalty
	}

	score += ScoreByPocket[strings.ToUpper(in.Pocket)]
	score += ScoreByComponent[strings.ToLower(in.Component)]
	score += ScoreByUrgency[strings.ToLower(in.Urgency)]

	if (in.ArchivePurpose == "PRIMARY" || in.ArchivePurpose == "PARTNER") && len(in.PackagesetScores) > 0 {
		best := in.PackagesetScores[0]
		for _, s := range in.PackagesetScores[1:] {
			if s > best {
				best = s
			}
		}
		score += best
	}
	return score
}
