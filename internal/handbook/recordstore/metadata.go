package recordstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultWebProgram is the program abbreviation used for web records whose file
// does not name one.
const DefaultWebProgram = "FBM"

// Link is a labelled URL attached to web records.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Metadata is the normalized projection of a record's raw metadata. Every field
// is always present; absent source keys yield zero values.
type Metadata struct {
	StudyProgramAbbrev string  `json:"studyProgramAbbrev"`
	ModuleNumber       string  `json:"moduleNumber"`
	ModuleNameDe       string  `json:"moduleNameDe"`
	ModuleNameEn       string  `json:"moduleNameEn"`
	Season             string  `json:"season"`
	Credits            string  `json:"credits"`
	CreditPointsNum    float64 `json:"creditPointsNum"`
	ExamType           string  `json:"examType"`
	SourceFile         string  `json:"source_file"`
	PDFPageStart       int     `json:"pdf_page_start"`
	PDFPageEnd         int     `json:"pdf_page_end"`
	StudyProgramURL    string  `json:"studyProgram_Url"`
	PDFURL             string  `json:"pdf_url"`
	Category           string  `json:"category"`
	Section            string  `json:"section"`
	Source             string  `json:"source"`
	Links              []Link  `json:"links"`
}

// IsWeb reports whether the record originates from scraped web content rather
// than a module handbook.
func (m Metadata) IsWeb() bool {
	return strings.Contains(strings.ToUpper(m.StudyProgramAbbrev), "WEB") ||
		m.Category != "" || m.Section != "" || m.Source != ""
}

// Name returns the German module name, falling back to the English one.
func (m Metadata) Name() string {
	if m.ModuleNameDe != "" {
		return m.ModuleNameDe
	}
	return m.ModuleNameEn
}

// NormalizeHandbook projects raw handbook metadata. defaultAbbrev is used when
// the record does not carry studyProgramAbbrev.
func NormalizeHandbook(raw map[string]any, defaultAbbrev string) Metadata {
	abbrev := str(raw, "studyProgramAbbrev")
	if _, ok := raw["studyProgramAbbrev"]; !ok {
		abbrev = defaultAbbrev
	}

	de, en := resolveNames(raw)
	start, end := resolvePages(raw)
	programURL, pdfURL := resolveURLs(raw)

	return Metadata{
		StudyProgramAbbrev: abbrev,
		ModuleNumber:       str(raw, "moduleNumber"),
		ModuleNameDe:       de,
		ModuleNameEn:       en,
		Season:             firstStr(raw, "offeredInSeason", "season"),
		Credits:            str(raw, "creditPoints"),
		CreditPointsNum:    resolveCreditPoints(raw),
		ExamType:           str(raw, "examType"),
		SourceFile:         str(raw, "source_file"),
		PDFPageStart:       start,
		PDFPageEnd:         end,
		StudyProgramURL:    programURL,
		PDFURL:             pdfURL,
		Links:              []Link{},
	}
}

// NormalizeWeb projects raw web metadata. Every record of a web file shares the
// program abbreviation of the file.
func NormalizeWeb(raw map[string]any, program string) Metadata {
	if program == "" {
		program = DefaultWebProgram
	}
	return Metadata{
		StudyProgramAbbrev: program,
		Category:           str(raw, "category"),
		Section:            str(raw, "section"),
		Source:             str(raw, "source"),
		Links:              links(raw["links"]),
	}
}

// Project normalizes metadata returned by the vector index, choosing the web or
// handbook policy from the keys present.
func Project(raw map[string]any) Metadata {
	abbrev := str(raw, "studyProgramAbbrev")
	if str(raw, "category") != "" || str(raw, "section") != "" || str(raw, "source") != "" ||
		strings.Contains(strings.ToUpper(abbrev), "WEB") {
		return NormalizeWeb(raw, abbrev)
	}
	return NormalizeHandbook(raw, "")
}

// resolveNames applies the name fallback chain: specific language first, then
// the generic moduleName.
func resolveNames(raw map[string]any) (de, en string) {
	generic := str(raw, "moduleName")
	de = str(raw, "moduleNameDe")
	if de == "" {
		de = generic
	}
	en = str(raw, "moduleNameEn")
	if en == "" {
		en = generic
	}
	return de, en
}

// resolveURLs applies the URL fallback chain for snake and camel case keys.
func resolveURLs(raw map[string]any) (programURL, pdfURL string) {
	return firstStr(raw, "studyProgram_Url", "studyProgramUrl"), firstStr(raw, "pdf_url", "pdfUrl")
}

// resolvePages returns the PDF page range, 0 for missing bounds.
func resolvePages(raw map[string]any) (start, end int) {
	return integer(raw["pdf_page_start"]), integer(raw["pdf_page_end"])
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

func resolveCreditPoints(raw map[string]any) float64 {
	if v, ok := raw["creditPointsNum"]; ok {
		if f, ok := number(v); ok {
			return f
		}
	}
	s := numberPattern.FindString(str(raw, "creditPoints"))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return f
}

func str(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func firstStr(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(raw, k); s != "" {
			return s
		}
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}

func integer(v any) int {
	f, ok := number(v)
	if !ok {
		return 0
	}
	return int(f)
}

func links(v any) []Link {
	out := []Link{}
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Link{Text: str(m, "text"), URL: str(m, "url")})
			}
		}
	case []Link:
		out = append(out, items...)
	}
	return out
}
