// Package verify implements the Output Verifier: the three sequential levels that check a Worker's claimed output
// against its tool trace and the real filesystem, plus the cross-tier
// verifier used to score synthesized orchestrator answers.
package verify

import "github.com/fenwick-ai/agentrt/trace"

// maxArtifactContentBytes bounds SpecialistOutput.Artifacts[].Content
//.
const maxArtifactContentBytes = 1024

type (
	// Artifact is a small named byproduct a worker attaches to its output
	// (a diff summary, a generated snippet), distinct from a Claim.
	Artifact struct {
		Name    string
		Content string
	}

	// SpecialistOutput is what a Worker reports back; it is what every
	// verification level examines.
	SpecialistOutput struct {
		Summary   string
		TraceRef  string
		Claims    []Claim
		Artifacts []Artifact
	}

	// Claim is a marker interface implemented by every claim kind a worker
	// can assert about side effects it produced.
	Claim interface{ isClaim() }

	// Anchor locates an edit by the code around it rather than by line
	// number, so it survives later edits.
	Anchor struct {
		BeforeSnippet string
		AfterSnippet  string
		ContentHash   string
	}

	FileWriteClaim struct {
		FilePath    string
		ContentHash string
	}

	FileEditClaim struct {
		FilePath     string
		Anchor       Anchor
		EditedRegion string
	}

	FileDeleteClaim struct {
		FilePath string
	}

	CommandExecutedClaim struct {
		Command  string
		ExitCode int
	}

	CodeInsertedClaim struct {
		FilePath string
		Anchor   Anchor
	}
)

func (FileWriteClaim) isClaim()       {}
func (FileEditClaim) isClaim()        {}
func (FileDeleteClaim) isClaim()      {}
func (CommandExecutedClaim) isClaim() {}
func (CodeInsertedClaim) isClaim()    {}

// Error is one verification failure, tagged with a stable category so
// callers can branch without string matching.
type Error struct {
	Category string
	Message  string
	Claim    Claim
}

// Categories used across the three levels.
const (
	CategoryMissingField     = "missing_field"
	CategoryInvalidType      = "invalid_type"
	CategorySchemaMismatch   = "schema_mismatch"
	CategoryHashMismatch     = "hash_mismatch"
	CategoryFileNotFound     = "file_not_found"
	CategoryAnchorMismatch   = "anchor_mismatch"
	CategoryFilesystemStatus = "filesystem_mismatch"
)

// Result is the outcome of running one or more verification levels.
type Result struct {
	Valid        bool
	Level        int
	Errors       []Error
	FailedClaims []Claim
}

// Structural runs level 1: required-field presence/typing on output.
// Claims and Artifacts are opaque shapes already (typed in Go), so only
// Summary/TraceRef/Artifact-size are checked here.
func Structural(output SpecialistOutput) Result {
	var errs []Error

	if output.Summary == "" {
		errs = append(errs, Error{Category: CategoryMissingField, Message: "summary is required"})
	}
	if output.TraceRef == "" {
		errs = append(errs, Error{Category: CategoryMissingField, Message: "traceRef is required"})
	} else if _, ok := trace.ParseRef(output.TraceRef); !ok {
		errs = append(errs, Error{Category: CategoryInvalidType, Message: "traceRef must have prefix \"trace:\""})
	}
	for _, a := range output.Artifacts {
		if len(a.Content) > maxArtifactContentBytes {
			errs = append(errs, Error{Category: CategoryInvalidType, Message: "artifact " + a.Name + " content exceeds 1KiB"})
		}
	}

	return Result{Valid: len(errs) == 0, Level: 1, Errors: errs}
}
