package orchestrator

import (
	"context"

	"github.com/etnz/syskoll/apply"
)

// ApplyResult runs the full apply pipeline for result against the live
// system: early filesystem changes, then the package transaction, then
// late filesystem changes. Under dry-run the package transaction is
// skipped.
func ApplyResult(ctx context.Context, s *Settings, a apply.Applicator, result *Result) error {
	early, late := result.EarlyLate(s)

	if err := apply.ApplyFiles(ctx, a, early); err != nil {
		return err
	}

	if s.EffectiveConfirmation() != ConfirmationDryRun {
		if err := apply.ApplyPackages(ctx, s.PackageBackends, result.PackageInstructions, true); err != nil {
			return err
		}
	}

	return apply.ApplyFiles(ctx, a, late)
}
