package inspection

// Verdict is the overall severity tier of an inspection.
type Verdict string

const (
	VerdictPass      Verdict = "PASS"
	VerdictAttention Verdict = "ATTENTION"
	VerdictFail      Verdict = "FAIL"
)

// VerdictFor maps the number of distinct damaged components to a tier.
// Confidence values play no part in it.
func VerdictFor(uniqueDefects int) Verdict {
	switch {
	case uniqueDefects <= 0:
		return VerdictPass
	case uniqueDefects <= 2:
		return VerdictAttention
	default:
		return VerdictFail
	}
}

func (v Verdict) Valid() bool {
	switch v {
	case VerdictPass, VerdictAttention, VerdictFail:
		return true
	}
	return false
}
