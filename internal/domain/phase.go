package domain

type PhaseName string

const (
	PhaseContentAnalysis      PhaseName = "content-analysis"
	PhaseNarrativeEngineering PhaseName = "narrative-engineering"
	PhaseSlideGeneration      PhaseName = "slide-generation"
	PhasePPTXConversion       PhaseName = "pptx-conversion"
)

// Phase is one entry of the static progress catalog.
type Phase struct {
	Name    PhaseName
	Ordinal int
}

var phaseCatalog = []Phase{
	{Name: PhaseContentAnalysis, Ordinal: 1},
	{Name: PhaseNarrativeEngineering, Ordinal: 2},
	{Name: PhaseSlideGeneration, Ordinal: 3},
	{Name: PhasePPTXConversion, Ordinal: 4},
}

// Phases returns a copy of the ordered catalog.
func Phases() []Phase {
	return append([]Phase(nil), phaseCatalog...)
}

func TotalPhases() int {
	return len(phaseCatalog)
}

// PhaseOrdinal returns the 1-based ordinal of name, or false when unknown.
func PhaseOrdinal(name PhaseName) (int, bool) {
	for _, phase := range phaseCatalog {
		if phase.Name == name {
			return phase.Ordinal, true
		}
	}
	return 0, false
}
