package decision

import (
	"fmt"
	"strings"

	"github.com/aitrader/engine/internal/domain"
)

var supportedSymbolSet = func() map[string]bool {
	set := make(map[string]bool, len(supportedSymbols))
	for _, s := range supportedSymbols {
		set[s] = true
	}
	return set
}()

// validate checks the well-formedness rules from spec.md §4.5. Symbol is
// expected already uppercased and Operation already lowercased (both
// normalized by internal/oracle before this point).
func validate(d *domain.Decision) error {
	switch d.Operation {
	case domain.OpBuy, domain.OpSell, domain.OpHold, domain.OpClose:
	default:
		return fmt.Errorf("unrecognized operation %q", d.Operation)
	}

	if d.Operation != domain.OpHold {
		if !supportedSymbolSet[strings.ToUpper(d.Symbol)] {
			return fmt.Errorf("symbol %q is not in the supported set", d.Symbol)
		}
		if d.TargetPortion <= 0 || d.TargetPortion > 1 {
			return fmt.Errorf("target_portion_of_balance %v out of range (0,1] for %s", d.TargetPortion, d.Operation)
		}
	}

	return nil
}
