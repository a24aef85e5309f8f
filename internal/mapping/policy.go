package mapping

import "fmt"

// Policy decides the whitelist of a mapping that does not list its
// nil-allowed keys explicitly.
type Policy int

const (
	// PolicyDefault allows every non-required key to be absent.
	PolicyDefault Policy = iota

	// PolicyStrict allows non-required keys to be absent only when the
	// mapping has at least one required key. A mapping without required
	// keys then needs all of its keys and is skipped silently otherwise.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a policy name. The empty string is PolicyDefault.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "default":
		return PolicyDefault, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyDefault, fmt.Errorf("unknown policy %q: must be default or strict", s)
	}
}
