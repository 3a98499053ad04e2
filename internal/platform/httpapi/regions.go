package httpapi

import (
	"fmt"
	"slices"
	"strings"
)

// Region is a hosted deployment of the platform.
type Region struct {
	Code        string `json:"code"`
	BaseURL     string `json:"base_url"`
	Description string `json:"description"`
}

// DefaultRegion is used when neither a region nor a base URL is given.
const DefaultRegion = "NA_EAST"

// Regions lists the known deployments.
var Regions = []Region{
	{Code: "NA_WEST", BaseURL: "https://na-west.platform.sublime.security", Description: "North America West (Oregon)"},
	{Code: "NA_EAST", BaseURL: "https://platform.sublime.security", Description: "North America East (Virginia)"},
	{Code: "CANADA", BaseURL: "https://ca.platform.sublime.security", Description: "Canada (Montréal)"},
	{Code: "EU_DUBLIN", BaseURL: "https://eu.platform.sublime.security", Description: "Europe (Dublin)"},
	{Code: "EU_UK", BaseURL: "https://uk.platform.sublime.security", Description: "Europe (UK)"},
	{Code: "AUSTRALIA", BaseURL: "https://au.platform.sublime.security", Description: "Australia (Sydney)"},
}

// LookupRegion finds a region by code, ignoring case.
func LookupRegion(code string) (Region, error) {
	i := slices.IndexFunc(Regions, func(r Region) bool {
		return strings.EqualFold(r.Code, strings.TrimSpace(code))
	})
	if i < 0 {
		codes := make([]string, len(Regions))
		for j, r := range Regions {
			codes[j] = r.Code
		}
		return Region{}, fmt.Errorf("unknown region %q: must be one of %s", code, strings.Join(codes, ", "))
	}
	return Regions[i], nil
}
