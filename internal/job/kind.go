package job

// Kind identifies one of the closed set of step variants.
type Kind int

const (
	KindFetch Kind = iota
	KindProcess
	KindGenerate
	KindFetchFile
	KindFetchURL
)

type kindInfo struct {
	name   string
	abbrev string
}

var kindTable = [...]kindInfo{
	KindFetch:     {name: "fetch", abbrev: "f"},
	KindProcess:   {name: "process", abbrev: "p"},
	KindGenerate:  {name: "generate", abbrev: "g"},
	KindFetchFile: {name: "fetch_file", abbrev: "ff"},
	KindFetchURL:  {name: "fetch_url", abbrev: "fu"},
}

// Kinds lists every step kind in canonical order.
func Kinds() []Kind {
	return []Kind{KindFetch, KindProcess, KindGenerate, KindFetchFile, KindFetchURL}
}

// StepNames lists every step name in canonical order.
func StepNames() []string {
	names := make([]string, 0, len(kindTable))
	for _, k := range Kinds() {
		names = append(names, k.String())
	}
	return names
}

// String returns the step name, e.g. "fetch_url".
func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return kindTable[k].name
}

// Abbreviation returns the wire-format tag, e.g. "fu".
func (k Kind) Abbreviation() string {
	if !k.valid() {
		return ""
	}
	return kindTable[k].abbrev
}

func (k Kind) valid() bool {
	return k >= 0 && int(k) < len(kindTable)
}

// KindByAbbreviation resolves a wire-format tag.
func KindByAbbreviation(abbrev string) (Kind, bool) {
	for _, k := range Kinds() {
		if kindTable[k].abbrev == abbrev {
			return k, true
		}
	}
	return 0, false
}

// KindByName resolves a step name.
func KindByName(name string) (Kind, bool) {
	for _, k := range Kinds() {
		if kindTable[k].name == name {
			return k, true
		}
	}
	return 0, false
}
