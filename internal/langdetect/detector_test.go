package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestDetector_IsVietnamese(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "empty", text: "   ", want: false},
		{name: "diacritics", text: "Xin chào các bạn", want: true},
		{name: "uppercase diacritics", text: "ĐƯỢC RỒI", want: true},
		{name: "decomposed diacritics", text: "xin cha\u0300o", want: true},
		{name: "english", text: "Let's review the quarterly numbers", want: false},
		{name: "single letters ignored", text: "a b c", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsVietnamese(tt.text))
		})
	}
}

func TestDetector_Detect(t *testing.T) {
	d := NewDetector()

	assert.Equal(t, language.Und, d.Detect(""))
	assert.Equal(t, language.Vietnamese, d.Detect("Tôi sẽ gửi báo cáo vào ngày mai"))
	assert.Equal(t, language.Japanese, d.Detect("こんにちは、世界!今日はいい天気ですね"))
}

func TestDetector_NeedsTranslation(t *testing.T) {
	d := NewDetector()

	assert.False(t, d.NeedsTranslation("", language.Vietnamese))
	assert.False(t, d.NeedsTranslation("Chúng ta bắt đầu cuộc họp nhé", language.Vietnamese))
	assert.True(t, d.NeedsTranslation("Let's start the meeting", language.Vietnamese))
	assert.True(t, d.NeedsTranslation("Chúng ta bắt đầu cuộc họp nhé", language.English))
}
