package dashboard

import (
	"time"

	"golang.org/x/text/language"

	"immun/internal/shared/models"
)

const NotApplicable = "N/A"

type layout struct {
	date     string
	dateTime string
}

var (
	supportedLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Japanese,
		language.Chinese,
	}
	localeLayouts = []layout{
		{"1/2/2006", "1/2/2006, 3:04:05 PM"},
		{"02/01/2006", "02/01/2006, 15:04:05"},
		{"2.1.2006", "2.1.2006, 15:04:05"},
		{"02/01/2006", "02/01/2006 15:04:05"},
		{"2/1/2006", "2/1/2006, 15:04:05"},
		{"2006/1/2", "2006/1/2 15:04:05"},
		{"2006/1/2", "2006/1/2 15:04:05"},
	}
	localeMatcher = language.NewMatcher(supportedLocales)
)

// Formatter renders record values the way both dashboards display them.
type Formatter struct {
	tag    language.Tag
	layout layout
	loc    *time.Location
}

// ParseLocale parses a BCP 47 tag, falling back to en-US.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

// NewFormatter picks the closest supported locale to tag. Creation
// timestamps are shown in loc; nil means time.Local.
func NewFormatter(tag language.Tag, loc *time.Location) Formatter {
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		idx = 0
	}
	if loc == nil {
		loc = time.Local
	}
	return Formatter{tag: supportedLocales[idx], layout: localeLayouts[idx], loc: loc}
}

func (f Formatter) Locale() language.Tag { return f.tag }

// Date formats a calendar date. A date is never shifted across time zones.
func (f Formatter) Date(d models.Date) string {
	if d.IsZero() {
		return NotApplicable
	}
	return d.Time().Format(f.layout.date)
}

func (f Formatter) OptionalDate(d *models.Date) string {
	if d == nil {
		return NotApplicable
	}
	return f.Date(*d)
}

func (f Formatter) DateTime(t time.Time) string {
	if t.IsZero() {
		return NotApplicable
	}
	return t.In(f.loc).Format(f.layout.dateTime)
}

func (f Formatter) Text(s string) string {
	if s == "" {
		return NotApplicable
	}
	return s
}
