package risk

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const verdictQuery = "data.session_trust.risk.verdict"

// DefaultPolicy encodes the same decision table as RuleClassifier.
const DefaultPolicy = `package session_trust.risk

default verdict := "CLEAN"

verdict := "NEW_DEVICE" if {
	not input.device.trusted
} else := "SUSPICIOUS_LOCATION" if {
	input.user.require_otp
} else := "SUSPICIOUS_LOCATION" if {
	country_changed
} else := "TOO_MANY_DEVICES" if {
	input.sessions.active_count >= input.sessions.max_sessions
}

known_country(c) if {
	trim_space(c) != ""
	upper(trim_space(c)) != "XX"
}

country_changed if {
	known_country(input.login.country)
	known_country(input.sessions.last_country)
	upper(trim_space(input.login.country)) != upper(trim_space(input.sessions.last_country))
}
`

// OPAClassifier evaluates a Rego policy that must define data.session_trust.risk.verdict.
// Any compile-time problem is reported by NewOPAClassifier; evaluation problems fall back to RuleClassifier.
type OPAClassifier struct {
	query    rego.PreparedEvalQuery
	fallback RuleClassifier
	logger   *slog.Logger
}

// LoadPolicyFile reads a Rego module from path. An empty path returns DefaultPolicy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read risk policy: %w", err)
	}
	return string(b), nil
}

// NewOPAClassifier compiles module and prepares the verdict query. An empty module uses DefaultPolicy.
func NewOPAClassifier(ctx context.Context, module string, logger *slog.Logger) (*OPAClassifier, error) {
	if module == "" {
		module = DefaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"risk.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile risk policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(verdictQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare risk policy: %w", err)
	}
	return &OPAClassifier{query: q, logger: logger}, nil
}

func buildInput(sig Signals) map[string]interface{} {
	return map[string]interface{}{
		"device": map[string]interface{}{
			"known":   sig.DeviceKnown,
			"trusted": sig.DeviceKnown && sig.DeviceTrusted,
		},
		"user": map[string]interface{}{
			"require_otp": sig.RequireOTP,
		},
		"login": map[string]interface{}{
			"country": sig.Country,
		},
		"sessions": map[string]interface{}{
			"last_country": sig.LastCountry,
			"active_count": sig.ActiveCount,
			"max_sessions": sig.MaxSessions,
		},
	}
}

func (c *OPAClassifier) eval(ctx context.Context, sig Signals) (Verdict, error) {
	rs, err := c.query.Eval(ctx, rego.EvalInput(buildInput(sig)))
	if err != nil {
		return "", fmt.Errorf("eval risk policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", fmt.Errorf("risk policy returned no verdict")
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	if !ok || !Verdict(s).Valid() {
		return "", fmt.Errorf("risk policy returned invalid verdict %v", rs[0].Expressions[0].Value)
	}
	return Verdict(s), nil
}

// Classify evaluates the policy. On evaluation failure it logs and returns the RuleClassifier verdict,
// so a broken policy never blocks logins.
func (c *OPAClassifier) Classify(ctx context.Context, sig Signals) (Verdict, error) {
	v, err := c.eval(ctx, sig)
	if err != nil {
		c.logger.Warn("risk: policy evaluation failed, using rule table", "error", err)
		return c.fallback.Classify(ctx, sig)
	}
	return v, nil
}

// HealthCheck evaluates the prepared policy against a trusted, idle login and expects CLEAN.
func (c *OPAClassifier) HealthCheck(ctx context.Context) error {
	v, err := c.eval(ctx, Signals{DeviceKnown: true, DeviceTrusted: true, MaxSessions: 1})
	if err != nil {
		return err
	}
	if v != Clean {
		return fmt.Errorf("risk policy self-check returned %s, want %s", v, Clean)
	}
	return nil
}
