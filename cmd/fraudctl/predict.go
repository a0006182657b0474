package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict [upiId]",
		Short: "Score one transaction against a running API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			in := &domain.TransactionInput{UPIID: args[0]}
			in.Amount, _ = f.GetFloat64("amount")
			in.AmountDeviation, _ = f.GetFloat64("deviation")
			in.TimeAnomaly, _ = f.GetFloat64("time-anomaly")
			in.LocationDistance, _ = f.GetFloat64("distance")
			in.MerchantNovelty, _ = f.GetFloat64("novelty")
			in.TransactionFrequency, _ = f.GetFloat64("frequency")
			mode, _ := f.GetString("mode")
			lang, _ := f.GetString("language")
			in.Mode, in.Language = domain.Mode(mode), domain.Language(lang)
			timeout, _ := f.GetDuration("timeout")

			client := newAPIClient(baseURL(cmd), timeout)
			result, err := client.predict(cmd.Context(), domain.NewPredictRequest(in))
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	f := cmd.Flags()
	f.Float64P("amount", "a", 0, "Transaction amount")
	f.Float64("deviation", 0, "Amount deviation from the handle's norm")
	f.Float64("time-anomaly", 0, "Time anomaly in [0, 1]")
	f.Float64("distance", 0, "Distance from usual location")
	f.Float64("novelty", 0, "Merchant novelty in [0, 1]")
	f.Float64("frequency", 0, "Recent transaction frequency")
	f.StringP("mode", "m", "fast", "Model mode (fast, accurate)")
	f.StringP("language", "l", "en", "Explanation language (en, hi, mr)")
	f.Duration("timeout", 45*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
