package attendance

import (
	"slices"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
)

// IsAuthorized reports whether p may clock in at a device of site and brand.
// Both allow-lists must contain the device's value; an empty value never
// matches.
func IsAuthorized(p person.Person, site, brand string) attendance.AuthorizationResult {
	hasSite := site != "" && slices.Contains(p.AuthorizedSites, site)
	hasBrand := brand != "" && slices.Contains(p.AuthorizedBrands, brand)

	result := attendance.AuthorizationResult{
		Authorized:     hasSite && hasBrand,
		HasSiteAccess:  hasSite,
		HasBrandAccess: hasBrand,
		Reasons:        []string{},
	}
	if !hasSite {
		result.Reasons = append(result.Reasons, "site "+quoteOrNone(site)+" not in authorized sites")
	}
	if !hasBrand {
		result.Reasons = append(result.Reasons, "brand "+quoteOrNone(brand)+" not in authorized brands")
	}
	return result
}

func quoteOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return `"` + s + `"`
}
