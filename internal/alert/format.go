// Package alert renders POI discrepancies into Slack-style messages and
// delivers them over an outbound webhook.
package alert

import (
	"fmt"
	"strings"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// FormatDiscrepancy renders a disagreement plus its reuse trail. Pure and
// deterministic: fingerprints iterate in canonical byte order, indexer
// addresses sorted, binary values as lowercase hex, so two calls over the
// same logical data produce byte-identical output.
func FormatDiscrepancy(key poi.Key, set *poi.FingerprintSet, reuse map[string][]string) string {
	parts := []string{
		"🚨 *New POI Discrepancy Found*",
		fmt.Sprintf("*Deployment:* `%s`", key.Deployment),
		fmt.Sprintf("*Block:* `%d`", key.Block),
		"*POI Submissions:*",
	}

	for _, fp := range set.Fingerprints() {
		hex := fp.Hex()
		parts = append(parts, fmt.Sprintf("*POI Hash:* `%s`", hex))

		if lines := reuse[hex]; len(lines) > 0 {
			parts = append(parts, "⚠️ *POI Reuse:*")
			for _, line := range lines {
				parts = append(parts, fmt.Sprintf("  • %s", line))
			}
		}

		parts = append(parts, fmt.Sprintf("*Submitted by:* `%s`", strings.Join(set.Indexers(fp), ", ")))
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}
