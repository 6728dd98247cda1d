// Package assembler turns ranked matches into the bounded context window
// handed to the chat model, together with the sources it cites.
package assembler

import (
	"strings"
	"unicode/utf8"

	"github.com/kart-io/handbook-rag/internal/handbook/recordstore"
	"github.com/kart-io/handbook-rag/internal/handbook/vectorindex"
)

// Group labels written in front of each provenance group.
const (
	WebLabel      = "## Web"
	HandbookLabel = "## Modulhandbuch"

	unknownModule = "UNK"
	blockSep      = "\n\n"
)

// Origins reported on a Source.
const (
	OriginWeb      = "web"
	OriginHandbook = "handbook"
)

// Records resolves record text and normalized metadata by id.
type Records interface {
	Text(id string) (string, bool)
	Metadata(id string) (recordstore.Metadata, bool)
}

// Limits bounds the assembled context.
type Limits struct {
	// ScoreThreshold drops matches scoring below it.
	ScoreThreshold float64
	// PerModuleCap is the maximum number of blocks per module key within a group.
	PerModuleCap int
	// MaxChunks is the maximum number of blocks per group.
	MaxChunks int
	// MaxChars truncates the context to this many runes. <= 0 disables truncation.
	MaxChars int
}

// Source describes one block of the assembled context.
type Source struct {
	ID                 string             `json:"id"`
	Origin             string             `json:"origin"`
	Namespace          string             `json:"namespace"`
	ModuleNumber       string             `json:"moduleNumber"`
	ModuleNameDe       string             `json:"moduleNameDe"`
	ModuleNameEn       string             `json:"moduleNameEn"`
	StudyProgramAbbrev string             `json:"studyProgramAbbrev"`
	Season             string             `json:"season"`
	Credits            string             `json:"credits"`
	ExamType           string             `json:"examType"`
	Score              float64            `json:"score"`
	SourceFile         string             `json:"sourceFile"`
	PDFPageStart       int                `json:"pdfPageStart"`
	PDFPageEnd         int                `json:"pdfPageEnd"`
	StudyProgramURL    string             `json:"studyProgramUrl"`
	PDFURL             string             `json:"pdfUrl"`
	Category           string             `json:"category"`
	Section            string             `json:"section"`
	Source             string             `json:"source"`
	Links              []recordstore.Link `json:"links"`
}

// Assembler builds context windows from matches.
type Assembler struct {
	records Records
}

// New creates an Assembler backed by records. records may be nil, in which
// case only match metadata and snippets are used.
func New(records Records) *Assembler {
	return &Assembler{records: records}
}

type resolved struct {
	match vectorindex.Match
	meta  recordstore.Metadata
}

// Assemble returns the context text and one Source per emitted block. Web
// blocks precede handbook blocks. Missing metadata never fails the call.
func (a *Assembler) Assemble(matches []vectorindex.Match, limits Limits) (string, []Source) {
	var web, handbook []resolved
	for _, m := range matches {
		if m.Score < limits.ScoreThreshold {
			continue
		}
		r := resolved{match: m, meta: a.metadata(m)}
		if r.meta.IsWeb() {
			web = append(web, r)
		} else {
			handbook = append(handbook, r)
		}
	}

	webBlocks, webSources := a.group(web, limits, true)
	hbBlocks, hbSources := a.group(handbook, limits, false)

	var parts []string
	if len(webBlocks) > 0 {
		parts = append(parts, WebLabel+blockSep+strings.Join(webBlocks, blockSep))
	}
	if len(hbBlocks) > 0 {
		parts = append(parts, HandbookLabel+blockSep+strings.Join(hbBlocks, blockSep))
	}

	sources := make([]Source, 0, len(webSources)+len(hbSources))
	sources = append(sources, webSources...)
	sources = append(sources, hbSources...)

	return Truncate(strings.Join(parts, blockSep), limits.MaxChars), sources
}

func (a *Assembler) group(items []resolved, limits Limits, web bool) ([]string, []Source) {
	var (
		blocks  []string
		sources []Source
		perKey  = make(map[string]int)
	)
	for _, it := range items {
		if limits.MaxChunks > 0 && len(blocks) >= limits.MaxChunks {
			break
		}

		key := it.meta.ModuleNumber
		if key == "" {
			key = unknownModule
		}
		perKey[key]++
		if perKey[key] > limits.PerModuleCap {
			continue
		}

		text := a.text(it.match)
		if text == "" {
			continue
		}

		var header string
		if web {
			header = WebHeader(it.meta)
		} else {
			header = HandbookHeader(it.meta, key)
		}
		blocks = append(blocks, Block(header, text))
		sources = append(sources, newSource(it.match, it.meta, web))
	}
	return blocks, sources
}

func (a *Assembler) metadata(m vectorindex.Match) recordstore.Metadata {
	if a.records != nil {
		if meta, ok := a.records.Metadata(m.ID); ok {
			return meta
		}
	}
	return recordstore.Project(m.Metadata)
}

func (a *Assembler) text(m vectorindex.Match) string {
	if a.records != nil {
		if t, ok := a.records.Text(m.ID); ok && strings.TrimSpace(t) != "" {
			return t
		}
	}
	return strings.TrimSpace(m.Snippet())
}

// WebHeader formats "[abbrev] category • section". Empty parts are omitted and
// source stands in when both category and section are empty.
func WebHeader(meta recordstore.Metadata) string {
	var parts []string
	if meta.Category != "" {
		parts = append(parts, meta.Category)
	}
	if meta.Section != "" {
		parts = append(parts, meta.Section)
	}
	if len(parts) == 0 && meta.Source != "" {
		parts = append(parts, meta.Source)
	}
	return joinHeader(meta.StudyProgramAbbrev, parts)
}

// HandbookHeader formats "[abbrev] moduleKey • name".
func HandbookHeader(meta recordstore.Metadata, moduleKey string) string {
	parts := []string{moduleKey}
	if name := meta.Name(); name != "" {
		parts = append(parts, name)
	}
	return joinHeader(meta.StudyProgramAbbrev, parts)
}

func joinHeader(abbrev string, parts []string) string {
	head := "[" + abbrev + "]"
	if len(parts) == 0 {
		return head
	}
	return head + " " + strings.Join(parts, " • ")
}

// Block renders a header, a dash underline of the same rune length and the text.
func Block(header, text string) string {
	return header + "\n" + strings.Repeat("-", utf8.RuneCountInString(header)) + "\n" + text
}

// Truncate cuts s to at most max runes. max <= 0 returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func newSource(m vectorindex.Match, meta recordstore.Metadata, web bool) Source {
	origin := OriginHandbook
	if web {
		origin = OriginWeb
	}
	links := meta.Links
	if links == nil {
		links = []recordstore.Link{}
	}
	return Source{
		ID:                 m.ID,
		Origin:             origin,
		Namespace:          m.Namespace,
		ModuleNumber:       meta.ModuleNumber,
		ModuleNameDe:       meta.ModuleNameDe,
		ModuleNameEn:       meta.ModuleNameEn,
		StudyProgramAbbrev: meta.StudyProgramAbbrev,
		Season:             meta.Season,
		Credits:            meta.Credits,
		ExamType:           meta.ExamType,
		Score:              m.Score,
		SourceFile:         meta.SourceFile,
		PDFPageStart:       meta.PDFPageStart,
		PDFPageEnd:         meta.PDFPageEnd,
		StudyProgramURL:    meta.StudyProgramURL,
		PDFURL:             meta.PDFURL,
		Category:           meta.Category,
		Section:            meta.Section,
		Source:             meta.Source,
		Links:              links,
	}
}
