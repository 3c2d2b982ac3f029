// Package pipeline runs the stage sequence (fetch, prep, build, post,
// verify, sign, publish, upload, init-cache) across the
// component/distribution/template matrix, instantiating plugins
// through internal/pluginmgr and executing them through an
// internal/executor.Executor.
package pipeline

import "fmt"

// Stage names the pipeline's fixed stage sequence. Order here is the
// default run order for the "all" stage alias.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StagePrep      Stage = "prep"
	StageBuild     Stage = "build"
	StagePost      Stage = "post"
	StageVerify    Stage = "verify"
	StageSign      Stage = "sign"
	StagePublish   Stage = "publish"
	StageUpload    Stage = "upload"
	StageInitCache Stage = "init-cache"
)

// Sequence is the order "all" runs stages in. fetch always runs
// alone first (every other stage depends on source being present),
// then the rest run in this order.
var Sequence = []Stage{
	StageFetch, StagePrep, StageBuild, StagePost, StageVerify,
	StageSign, StagePublish, StageUpload,
}

// aliases maps the short CLI stage aliases to a Stage, mirroring
// the original implementation's short stage flags.
var aliases = map[string]Stage{
	"f":  StageFetch,
	"b":  StageBuild,
	"po": StagePost,
	"v":  StageVerify,
	"s":  StageSign,
	"pu": StagePublish,
	"u":  StageUpload,
}

// ParseStage resolves a stage name or its short alias.
func ParseStage(s string) (Stage, error) {
	if alias, ok := aliases[s]; ok {
		return alias, nil
	}
	for _, st := range Sequence {
		if string(st) == s {
			return st, nil
		}
	}
	if s == string(StageInitCache) {
		return StageInitCache, nil
	}
	if s == "all" {
		return "", fmt.Errorf("pipeline: \"all\" is a stage group, not a single stage")
	}
	return "", fmt.Errorf("pipeline: unknown stage %q", s)
}
