package langdetect

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// vietnameseWordRatio is the share of high-frequency Vietnamese words above which
// undiacritized text still counts as Vietnamese.
const vietnameseWordRatio = 0.3

// minConfidence is the whatlanggo confidence below which Detect reports language.Und.
const minConfidence = 0.5

const vietnameseLetters = "àáạảãâầấậẩẫăằắặẳẵèéẹẻẽêềếệểễìíịỉĩòóọỏõôồốộổỗơờớợởỡùúụủũưừứựửữỳýỵỷỹđ"

var vietnameseWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"là", "của", "và", "có", "trong", "được", "các", "này", "cho", "không",
		"một", "với", "để", "những", "hay", "về", "khi", "bạn", "tôi", "họ",
		"đó", "nếu", "như", "thì", "mà", "sẽ", "cũng", "đã", "rất",
		"nhiều", "nơi", "việc", "người", "thời", "năm", "ngày", "tháng",
	} {
		vietnameseWords[norm.NFC.String(w)] = struct{}{}
	}
}

// Detector answers language questions about caption text.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// IsVietnamese reports whether text carries Vietnamese diacritics or is made up of
// more than 30% common Vietnamese words.
func (d *Detector) IsVietnamese(text string) bool {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	if strings.ContainsAny(lower, vietnameseLetters) {
		return true
	}

	words := make([]string, 0)
	for _, w := range strings.Fields(lower) {
		if len([]rune(w)) > 1 {
			words = append(words, strings.TrimFunc(w, unicode.IsPunct))
		}
	}
	if len(words) == 0 {
		return false
	}

	hits := 0
	for _, w := range words {
		if _, ok := vietnameseWords[w]; ok {
			hits++
		}
	}
	return float64(hits)/float64(len(words)) > vietnameseWordRatio
}

// Detect returns the most likely language of text. Vietnamese is recognised by the
// heuristic above; anything else is delegated to whatlanggo.
func (d *Detector) Detect(text string) language.Tag {
	if strings.TrimSpace(text) == "" {
		return language.Und
	}
	if d.IsVietnamese(text) {
		return language.Vietnamese
	}

	info := whatlanggo.Detect(text)
	if info.Confidence < minConfidence {
		return language.Und
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return language.Und
	}
	return tag
}

// NeedsTranslation reports whether text has to be translated to reach target.
func (d *Detector) NeedsTranslation(text string, target language.Tag) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if sameBase(target, language.Vietnamese) {
		return !d.IsVietnamese(text)
	}
	detected := d.Detect(text)
	if detected == language.Und {
		return true
	}
	return !sameBase(detected, target)
}

func sameBase(a, b language.Tag) bool {
	ba, _ := a.Base()
	bb, _ := b.Base()
	return ba == bb
}
