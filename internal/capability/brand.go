package capability

import "adforge/internal/campaign"

// BrandFromAnalysis projects a completed business analysis onto the brand
// context adapters consume. Nil analysis yields a zero brand context, which
// adapters treat as "no steering".
func BrandFromAnalysis(a *campaign.BusinessAnalysis) BrandContext {
	if a == nil {
		return BrandContext{}
	}
	return BrandContext{
		Company:  a.Company.Name,
		Voice:    a.Brand.Voice,
		Tone:     a.Brand.Tone,
		Keywords: append([]string(nil), a.Brand.Keywords...),
		Avoid:    append([]string(nil), a.Brand.Avoid...),
		Audience: a.Audience.Primary,
	}
}
