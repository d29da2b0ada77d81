package app

import (
	"fmt"
	"strings"
)

// OrgDirectory maps user locales to the VeraId organisations managed by this server.
type OrgDirectory struct {
	fallbackDomain string
	domainByLocale map[string]string
}

func NewOrgDirectory(fallbackDomain string, domainByLocale map[string]string) *OrgDirectory {
	normalised := make(map[string]string, len(domainByLocale))
	for locale, domain := range domainByLocale {
		normalised[strings.ToLower(locale)] = domain
	}
	return &OrgDirectory{fallbackDomain: fallbackDomain, domainByLocale: normalised}
}

// DomainForLocale is case-insensitive and falls back to the default domain.
func (d *OrgDirectory) DomainForLocale(locale string) string {
	if domain, ok := d.domainByLocale[strings.ToLower(locale)]; ok {
		return domain
	}
	return d.fallbackDomain
}

// ManagedDomains lists every organisation this server creates members in.
func (d *OrgDirectory) ManagedDomains() []string {
	domains := []string{d.fallbackDomain}
	for _, domain := range d.domainByLocale {
		if domain != d.fallbackDomain {
			domains = append(domains, domain)
		}
	}
	return domains
}

func orgMembersEndpoint(domain string) string {
	return fmt.Sprintf("/orgs/%s/members", domain)
}
