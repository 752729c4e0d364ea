package device

// TrustPolicy decides the effective trust state of a binding.
type TrustPolicy interface {
	Evaluate(b Binding) TrustState
}

// FirstDevicePolicy trusts the first device of an account. Later devices stay new
// until explicitly confirmed. The first-device rule itself is applied when the
// binding is created, so evaluation only reports the stored state.
type FirstDevicePolicy struct{}

func (FirstDevicePolicy) Evaluate(b Binding) TrustState {
	return b.TrustState
}

// LoginCountPolicy promotes a new binding once it has Threshold successful logins.
type LoginCountPolicy struct {
	Threshold int
}

func (p LoginCountPolicy) Evaluate(b Binding) TrustState {
	if b.TrustState == TrustStateNew && p.Threshold > 0 && b.SuccessfulLogins >= p.Threshold {
		return TrustStateTrusted
	}
	return b.TrustState
}

// NewTrustPolicy maps a configured policy name to a TrustPolicy.
func NewTrustPolicy(name string, loginThreshold int) TrustPolicy {
	switch name {
	case "login-count":
		return LoginCountPolicy{Threshold: loginThreshold}
	default:
		return FirstDevicePolicy{}
	}
}
