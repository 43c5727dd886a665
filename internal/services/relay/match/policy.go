package match

import (
	"errors"
	"fmt"
	"math"
)

// DefaultConsensusFraction is used when a policy names no fraction.
const DefaultConsensusFraction = 0.8

// ErrInvalidPolicy marks an unusable consensus policy.
var ErrInvalidPolicy = errors.New("invalid match policy")

// Policy decides how many agreeing results a match needs.
type Policy struct {
	Participants      int     `json:"participants"`
	ConsensusFraction float64 `json:"consensus_fraction,omitempty"`
	// FixedMinimum, when positive, replaces the fraction with an absolute count.
	FixedMinimum int  `json:"fixed_minimum,omitempty"`
	TestMode     bool `json:"test_mode,omitempty"`
}

// Normalized fills the default fraction.
func (p Policy) Normalized() Policy {
	if p.ConsensusFraction == 0 {
		p.ConsensusFraction = DefaultConsensusFraction
	}
	return p
}

// Validate checks the policy. Test mode requires a fixed minimum.
func (p Policy) Validate() error {
	if p.Participants < 1 {
		return fmt.Errorf("%w: participants must be positive", ErrInvalidPolicy)
	}
	if p.FixedMinimum < 0 || p.FixedMinimum > p.Participants {
		return fmt.Errorf("%w: fixed minimum %d outside 1..%d", ErrInvalidPolicy, p.FixedMinimum, p.Participants)
	}
	if p.TestMode && p.FixedMinimum == 0 {
		return fmt.Errorf("%w: test mode requires a fixed minimum", ErrInvalidPolicy)
	}
	if p.FixedMinimum == 0 && (p.ConsensusFraction <= 0 || p.ConsensusFraction > 1) {
		return fmt.Errorf("%w: consensus fraction %v outside (0, 1]", ErrInvalidPolicy, p.ConsensusFraction)
	}
	return nil
}

// MinimumAgreeing is FixedMinimum when set, otherwise
// ceil(Participants × ConsensusFraction), never below one.
func (p Policy) MinimumAgreeing() int {
	if p.FixedMinimum > 0 {
		return p.FixedMinimum
	}
	// The epsilon keeps 5 × 0.6 at 3 despite float rounding.
	minimum := int(math.Ceil(float64(p.Participants)*p.ConsensusFraction - 1e-9))
	if minimum < 1 {
		minimum = 1
	}
	if minimum > p.Participants {
		minimum = p.Participants
	}
	return minimum
}
