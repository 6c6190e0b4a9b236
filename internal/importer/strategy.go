package importer

import "github.com/wms-admin/gateway/internal/models"

// Strategy names a way to resolve validation errors before submission.
type Strategy string

const (
	// StrategyInline lets the user fix errors directly in the preview
	// grid and resubmit. With zero errors it is also the straight
	// proceed-to-submit path.
	StrategyInline Strategy = "inline"
	// StrategyDownload routes the user to an error file fixed offline
	// and re-uploaded.
	StrategyDownload Strategy = "download"
	// StrategyForce submits including rows that failed local validation,
	// deferring to server-side rejection.
	StrategyForce Strategy = "force"
)

// Advice is the deterministic edit-strategy recommendation. Both the
// suggested and the alternative path are always surfaced; the choice is
// never made silently for the user.
type Advice struct {
	Suggested   Strategy `json:"suggested"`
	Alternative Strategy `json:"alternative,omitempty"`
	Prompt      bool     `json:"prompt"`
	Message     string   `json:"message,omitempty"`
}

// Advise picks the suggested strategy from the validation error count and
// the total row count. Inline correction of many rows is impractical in
// the small embedded grid, hence the download suggestion past the fixed
// thresholds.
func Advise(totalRows, errorCount int) Advice {
	if errorCount == 0 {
		return Advice{Suggested: StrategyInline, Prompt: false}
	}
	if totalRows > models.InlineRowLimit || errorCount > models.InlineErrorLimit {
		return Advice{
			Suggested:   StrategyDownload,
			Alternative: StrategyForce,
			Prompt:      true,
			Message:     "Too many rows to fix in place; download the error file for batch editing, or import anyway",
		}
	}
	return Advice{
		Suggested:   StrategyInline,
		Alternative: StrategyDownload,
		Prompt:      true,
		Message:     "Fix the highlighted rows in place, or download the file to edit offline",
	}
}
