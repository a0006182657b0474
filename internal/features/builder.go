// Package features assembles classifier input vectors.
package features

import "github.com/opensource-finance/fraudguard/internal/domain"

var baseNames = []string{
	"transactionAmount",
	"transactionAmountDeviation",
	"timeAnomaly",
	"locationDistance",
	"merchantNovelty",
	"transactionFrequency",
}

var crossNames = []string{
	"amountXDistance",
	"deviationXNovelty",
	"timeAnomalyPerFrequency",
}

// Build returns the feature vector in the column order the classifier for
// mode was trained on. Ranges are not checked here.
func Build(in *domain.TransactionInput, mode domain.Mode) []float64 {
	vec := make([]float64, 0, Width(mode))
	vec = append(vec,
		in.Amount,
		in.AmountDeviation,
		in.TimeAnomaly,
		in.LocationDistance,
		in.MerchantNovelty,
		in.TransactionFrequency,
	)

	if mode == domain.ModeAccurate {
		vec = append(vec,
			in.Amount*in.LocationDistance,
			in.AmountDeviation*in.MerchantNovelty,
			// +1 keeps a zero frequency from dividing by zero
			in.TimeAnomaly/(in.TransactionFrequency+1),
		)
	}
	return vec
}

// Width is the vector length Build produces for mode.
func Width(mode domain.Mode) int {
	if mode == domain.ModeAccurate {
		return len(baseNames) + len(crossNames)
	}
	return len(baseNames)
}

// Names returns the column names for mode.
func Names(mode domain.Mode) []string {
	names := append([]string(nil), baseNames...)
	if mode == domain.ModeAccurate {
		names = append(names, crossNames...)
	}
	return names
}
