package intent

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	emailPattern    = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	namePattern     = regexp.MustCompile(`(?i)my name is ([a-z ]+)`)
	timeZonePattern = regexp.MustCompile(`(?i)\b(america|australia|europe|asia|africa|pacific|atlantic|indian|antarctica|arctic)((?:/[a-z_-]+){1,2})\b`)

	// "may" "march" 同时是常用词，只有紧挨日数时才按月份解析
	ambiguousMonthPattern = regexp.MustCompile(`\b(?:may|march)\b`)
	monthDayPattern       = regexp.MustCompile(`\b(?:may|march)\s+\d{1,2}(?:st|nd|rd|th)?\b|\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:may|march)\b`)

	yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

	// "in an hour" 之类是相对时间，不是会议时长
	offsetPattern = regexp.MustCompile(`\b(?:in|within|after)\s+(?:about\s+|around\s+)?(?:half\s+)?(?:an\s+|a\s+|one\s+|\d+\s*|fifteen\s+|thirty\s+|forty[- ]five\s+|sixty\s+)?(?:hours?|minutes?|mins?)\b`)
)

var monthNames = map[string]bool{
	"january": true, "february": true, "march": true, "april": true, "may": true, "june": true,
	"july": true, "august": true, "september": true, "october": true, "november": true, "december": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

// 月份前后可忽略的虚词
var monthFillers = map[string]bool{"in": true, "on": true, "of": true, "the": true, "during": true, "early": true, "late": true, "mid": true}

// IANA 区名中保持小写的连接词，如 Isle_of_Man、Port-au-Prince
var zoneConnectors = map[string]bool{"of": true, "es": true, "au": true, "de": true, "la": true, "del": true, "du": true}

// 无法按规则推出大小写的区名
var irregularZones = map[string]string{
	"antarctica/mcmurdo":        "Antarctica/McMurdo",
	"antarctica/dumontdurville": "Antarctica/DumontDUrville",
}

// durationVocabulary 按顺序匹配，第一个命中的生效
// "half an hour" 必须排在 "an hour" 之前
var durationVocabulary = []struct {
	pattern *regexp.Regexp
	minutes int
}{
	{regexp.MustCompile(`\b(?:15|fifteen) ?(?:minutes?|mins?)\b`), 15},
	{regexp.MustCompile(`\b(?:30|thirty) ?(?:minutes?|mins?)\b`), 30},
	{regexp.MustCompile(`\bhalf (?:an )?hour\b`), 30},
	{regexp.MustCompile(`\b(?:45|forty[- ]five) ?(?:minutes?|mins?)\b`), 45},
	{regexp.MustCompile(`\b(?:60|sixty) ?(?:minutes?|mins?)\b`), 60},
	{regexp.MustCompile(`\b(?:an|one|1) hour\b`), 60},
}

// Extractor 从转写文本中提取预约意图，无状态，可并发使用
type Extractor struct {
	parser *when.Parser
	now    func() time.Time
}

// NewExtractor 创建意图提取器（英文 + 通用日期规则）
func NewExtractor() *Extractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Extractor{parser: w, now: time.Now}
}

// Extract 以当前时间为基准提取意图
func (e *Extractor) Extract(transcript string) BookingIntent {
	return e.ExtractAt(transcript, e.now())
}

// ExtractAt 以 base 为基准解析相对日期（"next tuesday" 等）
func (e *Extractor) ExtractAt(transcript string, base time.Time) BookingIntent {
	text := strings.ToLower(transcript)

	var out BookingIntent
	out.Date = e.extractDate(text, base)
	out.Duration = extractDuration(text)
	out.Email = emailPattern.FindString(text)
	out.Name = extractName(text)
	out.TimeZone = extractTimeZone(text)
	return out
}

// extractDate 只接受具体且不早于 base 的日期，单独的月份名不算
func (e *Extractor) extractDate(text string, base time.Time) time.Time {
	r, err := e.parser.Parse(maskAmbiguousMonths(text), base)
	if err != nil || r == nil {
		return time.Time{}
	}
	if bareMonth(r.Text) {
		return time.Time{}
	}
	t := r.Time
	// 未说年份的月日已过，顺延到明年
	if t.Before(base) && mentionsMonth(r.Text) && !yearPattern.MatchString(r.Text) {
		t = t.AddDate(1, 0, 0)
	}
	if t.Before(base) {
		return time.Time{}
	}
	return t
}

// maskAmbiguousMonths 用等长空白遮住不带日数的 may/march，其余位置不变
func maskAmbiguousMonths(text string) string {
	keep := monthDayPattern.FindAllStringIndex(text, -1)
	buf := []byte(text)
	for _, loc := range ambiguousMonthPattern.FindAllStringIndex(text, -1) {
		inside := false
		for _, k := range keep {
			if loc[0] >= k[0] && loc[1] <= k[1] {
				inside = true
				break
			}
		}
		if inside {
			continue
		}
		for i := loc[0]; i < loc[1]; i++ {
			buf[i] = ' '
		}
	}
	return string(buf)
}

func mentionsMonth(matched string) bool {
	for _, w := range strings.Fields(strings.ToLower(matched)) {
		if monthNames[strings.Trim(w, ",.")] {
			return true
		}
	}
	return false
}

func bareMonth(matched string) bool {
	found := false
	for _, w := range strings.Fields(strings.ToLower(matched)) {
		switch {
		case monthNames[strings.Trim(w, ",.")]:
			found = true
		case monthFillers[w]:
		default:
			return false
		}
	}
	return found
}

func extractDuration(text string) int {
	text = offsetPattern.ReplaceAllString(text, " ")
	for _, entry := range durationVocabulary {
		if entry.pattern.MatchString(text) {
			return entry.minutes
		}
	}
	return 0
}

func extractName(text string) string {
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.Join(strings.Fields(m[1]), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(name)
}

// extractTimeZone 规范化为时区库中的 IANA 名称，如 america/new_york -> America/New_York
// 时区库中不存在的名称返回空
func extractTimeZone(text string) string {
	m := strings.ToLower(timeZonePattern.FindString(text))
	if m == "" {
		return ""
	}
	candidates := []string{canonicalZone(m, true), canonicalZone(m, false)}
	if name, ok := irregularZones[m]; ok {
		candidates = append([]string{name}, candidates...)
	}
	for _, name := range candidates {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	return ""
}

// canonicalZone 逐词首字母大写，lowerConnectors 为真时连接词保持小写
func canonicalZone(zone string, lowerConnectors bool) string {
	caser := cases.Title(language.English)
	var b strings.Builder
	first := true
	start := 0
	for i := 0; i <= len(zone); i++ {
		if i < len(zone) && zone[i] != '/' && zone[i] != '_' && zone[i] != '-' {
			continue
		}
		word := zone[start:i]
		if lowerConnectors && !first && zoneConnectors[word] {
			b.WriteString(word)
		} else {
			b.WriteString(caser.String(word))
		}
		if i < len(zone) {
			b.WriteByte(zone[i])
			if zone[i] == '/' {
				first = true
			} else {
				first = false
			}
		}
		start = i + 1
	}
	return b.String()
}
