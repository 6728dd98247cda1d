package biz

import (
	"strings"
	"unicode"
)

// 支持的回答语言。
const (
	LangDE = "de"
	LangEN = "en"
)

// germanMarkers 出现任一完整单词即判定为德语。
var germanMarkers = map[string]struct{}{
	"wie":         {},
	"modul":       {},
	"studierende": {},
	"prüfung":     {},
	"ects":        {},
}

// DetectLang returns "de" when text contains a German umlaut or sharp s, or
// one of a few German marker words, and "en" otherwise.
func DetectLang(text string) string {
	t := strings.ToLower(text)
	if strings.ContainsAny(t, "äöüß") {
		return LangDE
	}
	for _, tok := range strings.FieldsFunc(t, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if _, ok := germanMarkers[tok]; ok {
			return LangDE
		}
	}
	return LangEN
}
