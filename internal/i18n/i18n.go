package i18n

import "strings"

type Lang string

const (
	EN Lang = "en"
	ES Lang = "es"
)

func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "es") {
		return ES
	}
	return EN
}

func Parse(s string) Lang {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "es":
		return ES
	case "en":
		return EN
	default:
		return EN
	}
}
