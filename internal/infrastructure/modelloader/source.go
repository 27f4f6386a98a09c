// Package modelloader resolves a configured model source — a HuggingFace
// repo or a local folder — to a loaded model file, consulting and
// populating the on-disk cache along the way. This is the canonical home
// for ModelSource (spec §9 Open Question 3: the source repo carried two
// near-duplicate definitions; this is the single one the rest of the
// runtime references).
package modelloader

import (
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

var hfRepoPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// multiPartPattern matches "<base>-NNNNN-of-MMMMM.gguf".
var multiPartPattern = regexp.MustCompile(`^(.+)-(\d{5})-of-(\d{5})\.gguf$`)

// SourceKind distinguishes the two ModelSource variants.
type SourceKind int

const (
	SourceHuggingFace SourceKind = iota
	SourceLocal
)

// ModelSource is a discriminated union: exactly one of the HuggingFace or
// Local field sets is meaningful, selected by Kind.
type ModelSource struct {
	Kind SourceKind

	// HuggingFace fields.
	Repo     string // "org/name"
	Filename string // optional; auto-detected when empty (Local uses it too)

	// Local fields.
	Folder string
}

// HuggingFaceSource builds a ModelSource pointing at a registry repo.
func HuggingFaceSource(repo, filename string) ModelSource {
	return ModelSource{Kind: SourceHuggingFace, Repo: repo, Filename: filename}
}

// LocalSource builds a ModelSource pointing at a folder on disk.
func LocalSource(folder, filename string) ModelSource {
	return ModelSource{Kind: SourceLocal, Folder: folder, Filename: filename}
}

// Validate checks the structural constraints from spec §4.B before any I/O
// is attempted.
func (s ModelSource) Validate() error {
	if s.Filename != "" && !strings.HasSuffix(strings.ToLower(s.Filename), ".gguf") {
		return pkgerrors.NewModelInvalidConfigError(
			fmt.Sprintf("filename %q must end in .gguf", s.Filename))
	}
	switch s.Kind {
	case SourceHuggingFace:
		if !hfRepoPattern.MatchString(s.Repo) {
			return pkgerrors.NewModelInvalidConfigError(
				fmt.Sprintf("huggingface repo %q must be of the form org/name", s.Repo))
		}
	case SourceLocal:
		if s.Folder == "" {
			return pkgerrors.NewModelInvalidConfigError("local source requires a folder")
		}
	default:
		return pkgerrors.NewModelInvalidConfigError("unknown model source kind")
	}
	return nil
}

// multiPartGroup returns the ordered list of filenames for a model split
// across N parts, given any one part's filename. ok is false when filename
// does not match the multi-part pattern (a single-file model).
func multiPartGroup(filename string) (files []string, ok bool) {
	m := multiPartPattern.FindStringSubmatch(filename)
	if m == nil {
		return nil, false
	}
	base, total := m[1], m[3]
	n := len(total)
	var count int
	if _, err := fmt.Sscanf(total, "%d", &count); err != nil || count <= 0 {
		return nil, false
	}
	files = make([]string, count)
	for i := 1; i <= count; i++ {
		files[i-1] = fmt.Sprintf("%s-%0*d-of-%s.gguf", base, n, i, total)
	}
	return files, true
}

// autoDetectFilename picks a .gguf file from candidates the way spec §4.B
// describes: prefer a name containing "bf16" (case-insensitive), else the
// first match.
func autoDetectFilename(candidates []string) (string, bool) {
	var ggufs []string
	for _, c := range candidates {
		if strings.HasSuffix(strings.ToLower(c), ".gguf") {
			ggufs = append(ggufs, c)
		}
	}
	if len(ggufs) == 0 {
		return "", false
	}
	for _, c := range ggufs {
		if strings.Contains(strings.ToLower(c), "bf16") {
			return c, true
		}
	}
	return ggufs[0], true
}
