package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

var veraidUserIDRegex = regexp.MustCompile(`^(?P<user>[^@]+)@(?P<domain>.+[^.])$`)

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(false),
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
)

// IsValidVeraidUserID reports whether id is a well-formed VeraId id of a user (not a bot).
func IsValidVeraidUserID(id string) bool {
	match := veraidUserIDRegex.FindStringSubmatch(id)
	if match == nil {
		return false
	}
	if !IsValidUserName(match[1]) {
		return false
	}
	return IsValidDomainName(match[2])
}

// IsValidUserName applies VeraId's user name rules: no at signs or whitespace.
func IsValidUserName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r == '@' || unicode.IsSpace(r)
	})
}

// IsValidDomainName reports whether name is a syntactically valid domain name with at least
// two labels. Unicode (IDN) names are allowed.
func IsValidDomainName(name string) bool {
	if name == "" || strings.HasSuffix(name, ".") {
		return false
	}
	ascii, err := domainProfile.ToASCII(name)
	if err != nil {
		return false
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !isValidLabel(label) {
			return false
		}
	}
	return true
}

func isValidLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
