package cmd

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/selab/internal/i18n"
	"grimm.is/selab/internal/profile"
	"grimm.is/selab/internal/workbench"
)

// RunExport writes the current surface as a profile. The format follows
// the file extension.
func RunExport(g Globals, path, name, description string) error {
	if path == "" {
		return fmt.Errorf("export: output file required")
	}
	e, err := setup(context.Background(), g, false)
	if err != nil {
		return err
	}
	defer e.close()

	if name == "" {
		name = "exported"
	}
	p := profile.Export(name, description, e.wb.Surface())
	if err := profile.Save(p, path); err != nil {
		return err
	}
	printf(i18n.MsgProfileWritten, path)
	return nil
}

// RunApplyProfile applies a saved profile and journals it as one change.
func RunApplyProfile(g Globals, path string) error {
	p, err := profile.Load(path)
	if err != nil {
		return err
	}
	ctx := context.Background()
	e, err := setup(ctx, g, false)
	if err != nil {
		return err
	}
	defer e.close()
	simulationNotice(e)

	_, rec, recorded, err := e.wb.Run(ctx, workbench.ActionProfile, e.wb.ApplyProfile(p))
	if recorded {
		printf(i18n.MsgProfileApplied, p.Name, rec.ID)
	} else if err == nil {
		printf(i18n.MsgNothingToChange)
	}
	return err
}

// RunHarden applies the safe-defaults preset, or the restrictive one.
func RunHarden(g Globals, restrictive bool) error {
	ctx := context.Background()
	e, err := setup(ctx, g, false)
	if err != nil {
		return err
	}
	defer e.close()
	simulationNotice(e)

	preset := e.wb.SafePreset()
	if restrictive {
		preset = profile.Restrictive()
	}

	var skipped []string
	_, rec, recorded, err := e.wb.Run(ctx, workbench.ActionHarden, e.wb.Harden(preset, &skipped))
	if len(skipped) > 0 {
		printf(i18n.MsgSkipped, strings.Join(skipped, ", "))
	}
	if recorded {
		printf(i18n.MsgPresetApplied, preset.Name, rec.ID)
	} else if err == nil {
		printf(i18n.MsgNothingToChange)
	}
	return err
}
