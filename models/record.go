package models

// Record is one business extracted from a search result block.
//
// Name, Phone and Image form the identity of a record: two records are the
// same iff all three are equal. Phone is stored as matched on the page,
// separators included. Image is nil when the block carries no usable image.
type Record struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Image *string `json:"image"`

	// Optional enrichment fields; absent from most result blocks.
	Rating   *float64 `json:"rating,omitempty"`
	Reviews  *int     `json:"reviews,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Equal reports whether two records are the same business listing.
// Only the name/phone/image triple participates in identity.
func (r Record) Equal(other Record) bool {
	if r.Name != other.Name || r.Phone != other.Phone {
		return false
	}
	if (r.Image == nil) != (other.Image == nil) {
		return false
	}
	return r.Image == nil || *r.Image == *other.Image
}

// Stop reasons reported by a run.
const (
	StopExhausted  = "no_result_blocks"  // selector matched nothing
	StopNoNew      = "no_new_records"    // every record on the page was already seen
	StopBlocked    = "blocked"           // anti-automation challenge page
	StopMaxPages   = "max_pages"         // page budget reached
	StopRenderFail = "render_failed"     // navigation or parse error
	StopCanceled   = "canceled"          // context canceled
)

// RunResult is the outcome of one scrape run. A run never fails outright:
// Records holds whatever was accumulated before the stop condition, and Err
// (when non-nil) explains why the run ended early. The caller decides what
// to persist.
type RunResult struct {
	Query        string   `json:"query"`
	Records      []Record `json:"records"`
	PagesFetched int      `json:"pages_fetched"`
	StopReason   string   `json:"stop_reason"`

	// OutputFile is filled in by the caller after persisting Records.
	OutputFile string `json:"output_file,omitempty"`

	// Err is the failure that stopped the run, if any. Not serialized.
	Err error `json:"-"`
}
