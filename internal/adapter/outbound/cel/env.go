package cel

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// NewGuardEnvironment creates the CEL environment access guards are written in.
//
// Variables: issuer, agreement_id, artifact_id, target, access_count,
// request_time, patterns.
// Functions: glob(pattern, s), host(url).
func NewGuardEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("issuer", cel.StringType),
		cel.Variable("agreement_id", cel.StringType),
		cel.Variable("artifact_id", cel.StringType),
		cel.Variable("target", cel.StringType),
		cel.Variable("access_count", cel.IntType),
		cel.Variable("request_time", cel.TimestampType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),

		// glob: shell-style match, e.g. glob("https://*.partner.example/*", issuer)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// host: lower-cased host of a URL, or "" when it does not parse.
		cel.Function("host",
			cel.Overload("host_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					u, err := url.Parse(v.Value().(string))
					if err != nil {
						return types.String("")
					}
					return types.String(strings.ToLower(u.Hostname()))
				}),
			),
		),
	)
}

// BuildActivation maps an access request to the guard variables.
func BuildActivation(req usage.AccessRequest) map[string]any {
	patterns := make([]string, 0, len(req.Patterns))
	for _, p := range req.Patterns {
		patterns = append(patterns, p.String())
	}
	return map[string]any{
		"issuer":       req.IssuerConnector,
		"agreement_id": req.AgreementID,
		"artifact_id":  req.ArtifactID,
		"target":       req.Target,
		"access_count": req.AccessCount,
		"request_time": req.Now,
		"patterns":     patterns,
	}
}
