package domain

// Band is a qualitative label for a score.
type Band string

const (
	BandExcellent  Band = "excellent"
	BandVeryGood   Band = "very good"
	BandAcceptable Band = "acceptable"
	BandWeak       Band = "weak"
)

// Percentage returns score/total*100 truncated to an integer, or 0 when total is 0.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return score * 100 / total
}

// BandFor classifies the exact ratio, so 2/3 (66.67%) is acceptable and 74.9% is not very good.
func BandFor(score, total int) Band {
	return BandForPercent(exactPercent(score, total))
}

// BandForPercent classifies a percentage value.
func BandForPercent(pct float64) Band {
	switch {
	case pct >= 90:
		return BandExcellent
	case pct >= 75:
		return BandVeryGood
	case pct >= 50:
		return BandAcceptable
	default:
		return BandWeak
	}
}

func exactPercent(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}
