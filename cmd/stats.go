package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"

	"grimm.is/selab/internal/i18n"
	"grimm.is/selab/internal/policy"
)

// RunStats prints the dashboard summary as text, json or yaml.
func RunStats(g Globals, format string) error {
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()

	st := e.wb.Stats()
	switch format {
	case "json":
		enc := json.NewEncoder(Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		data, err := yaml.Marshal(st)
		if err != nil {
			return err
		}
		_, err = Stdout.Write(data)
		return err
	case "", "text":
	default:
		return fmt.Errorf("stats: unknown format %q", format)
	}

	printf(i18n.MsgStatsMode, st.Mode)
	printf(i18n.MsgStatsAVC, st.TotalAVCAlerts,
		st.AVCBySeverity[string(policy.SeverityHigh)],
		st.AVCBySeverity[string(policy.SeverityMedium)],
		st.AVCBySeverity[string(policy.SeverityLow)])
	printf(i18n.MsgStatsBooleans, st.BooleansChanged, st.TotalBooleans)
	printf(i18n.MsgStatsModules, st.ModulesEnabled, st.TotalModules)
	printf(i18n.MsgStatsChanges, st.TotalChanges)
	printf(i18n.MsgStatsRisk, st.RiskScore, st.RiskLevel)
	return nil
}
