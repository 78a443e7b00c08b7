package job

import "blitzai/internal/api"

// Quality levels accepted by the processor.
const (
	QualityStandard = "standard"
	QualityHD       = "hd"
)

// GenerationOptions is the configuration attached to a job at submission
// time. It is immutable after submission and is folded into the
// start-processing request body rather than persisted on its own.
type GenerationOptions struct {
	Quality    string `json:"quality,omitempty"`
	Variations int    `json:"variations,omitempty"`
	Enhance    bool   `json:"enhance,omitempty"`
	Watermark  bool   `json:"watermark,omitempty"`
	SocialCopy bool   `json:"social_copy,omitempty"`
}

// Normalize fills in defaults for unset fields.
func (o GenerationOptions) Normalize() GenerationOptions {
	if o.Quality == "" {
		o.Quality = QualityStandard
	}
	if o.Variations <= 0 {
		o.Variations = 1
	}
	return o
}

// CostEstimate returns the credit cost displayed to the user before
// submission.
func (o GenerationOptions) CostEstimate() int {
	o = o.Normalize()
	perVariation := 10
	if o.Quality == QualityHD {
		perVariation = 20
	}
	cost := perVariation * o.Variations
	if o.Enhance {
		cost += 5
	}
	if o.SocialCopy {
		cost += 2
	}
	return cost
}

// StartConfig converts the options into the wire shape of the
// start-processing request.
func (o GenerationOptions) StartConfig() api.StartConfig {
	o = o.Normalize()
	return api.StartConfig{
		Quality:    o.Quality,
		Variations: o.Variations,
		Enhance:    o.Enhance,
		Watermark:  o.Watermark,
		SocialCopy: o.SocialCopy,
	}
}
