package app

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxUserNameLength = 16

var illicitUserNameChars = regexp.MustCompile(`[\s@]`)

var reservedUserNameWords = []string{
	"admin",
	"support",
	"help",
	"relaycorp",
	"awala",
	"letro",
	"vera", // VeraId
	"gusnarea",
	"gustavonarea",
	"gnarea",
}

// Leetspeak look-alikes of ASCII letters.
var lookalikeReplacer = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"!", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"$", "s",
	"|", "l",
)

var (
	userNameAdjectives = []string{
		"amber", "bold", "brave", "calm", "clever", "cosmic", "eager", "fancy",
		"gentle", "happy", "jolly", "kind", "lucky", "mellow", "noble", "proud",
		"quiet", "rapid", "shiny", "swift", "tidy", "vivid", "witty", "zesty",
	}
	userNameNouns = []string{
		"otter", "falcon", "maple", "river", "comet", "tiger", "lotus", "panda",
		"cedar", "heron", "koala", "lemon", "mango", "orca", "pearl", "quail",
		"raven", "sparrow", "tulip", "walrus", "yak", "zebra", "badger", "coral",
	}
)

// SanitiseUserName removes whitespace and at signs from name, truncates it and lower-cases it.
// Names that are empty or contain a reserved word, even disguised with look-alike
// characters, are replaced with a random "adjective-noun" name.
func SanitiseUserName(name string) string {
	sanitised := illicitUserNameChars.ReplaceAllString(name, "")
	sanitised = strings.ToLower(truncateRunes(sanitised, maxUserNameLength))
	if isUserNameAllowed(sanitised) {
		return sanitised
	}
	return GenerateUserName()
}

func isUserNameAllowed(name string) bool {
	folded := foldLookalikes(name)
	if folded == "" {
		return false
	}
	for _, word := range reservedUserNameWords {
		if strings.Contains(folded, word) {
			return false
		}
	}
	return true
}

// foldLookalikes maps name onto lower-case ASCII letters and digits, dropping everything else.
func foldLookalikes(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	decomposed, _, err := transform.String(t, name)
	if err != nil {
		decomposed = name
	}
	decomposed = lookalikeReplacer.Replace(strings.ToLower(decomposed))

	var b strings.Builder
	for _, r := range decomposed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GenerateUserName returns a random "adjective-noun" name of up to 16 characters.
func GenerateUserName() string {
	for {
		name := randomElement(userNameAdjectives) + "-" + randomElement(userNameNouns)
		if utf8.RuneCountInString(name) <= maxUserNameLength {
			return name
		}
	}
}

func randomElement(words []string) string {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return words[0]
	}
	return words[i.Int64()]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
