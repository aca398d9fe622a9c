package i18n

import (
	"strings"
	"sync"
)

// Translator retrieves localized messages for issue codes.
// data provides optional parameters to embed in the message (for example,
// "min" or "expected"); templates reference them as {name}.
type Translator interface {
	Message(code string, data map[string]string) string
}

var catalogs = map[string]map[string]string{
	"en": {
		"invalid_type":       "expected {expected}",
		"required":           "required",
		"too_small":          "must be at least {min}",
		"too_big":            "must be at most {max}",
		"too_short":          "must contain at least {min} characters",
		"too_long":           "must contain at most {max} characters",
		"too_few_items":      "must contain at least {min} items",
		"too_many_items":     "must contain at most {max} items",
		"not_integer":        "must be an integer",
		"pattern":            "invalid format",
		"invalid_enum":       "must be one of {options}",
		"invalid_format":     "invalid {format}",
		"mismatch":           "must match {other}",
		"uniqueness":         "duplicate value",
		"taken":              "already taken",
		"invalid":            "invalid value",
		"unsupported_schema": "Unsupported schema type",
		"validator_error":    "validation failed: {cause}",
		"parse_error":        "parse error",
	},
	"ja": {
		"invalid_type":       "{expected} を入力してください",
		"required":           "必須項目です",
		"too_small":          "{min} 以上を入力してください",
		"too_big":            "{max} 以下を入力してください",
		"too_short":          "{min} 文字以上で入力してください",
		"too_long":           "{max} 文字以内で入力してください",
		"too_few_items":      "{min} 件以上が必要です",
		"too_many_items":     "{max} 件以内にしてください",
		"not_integer":        "整数を入力してください",
		"pattern":            "形式が不正です",
		"invalid_enum":       "{options} のいずれかを選択してください",
		"invalid_format":     "{format} の形式が不正です",
		"mismatch":           "{other} と一致しません",
		"uniqueness":         "値が重複しています",
		"taken":              "既に使用されています",
		"invalid":            "不正な値です",
		"unsupported_schema": "サポートされていないスキーマ型です",
		"validator_error":    "検証に失敗しました: {cause}",
		"parse_error":        "解析エラー",
	},
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	tmpl, ok := catalogs[t.lang][code]
	if !ok {
		tmpl, ok = catalogs["en"][code]
	}
	if !ok {
		return code
	}
	return interpolate(tmpl, data)
}

func interpolate(tmpl string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

var (
	mu                sync.RWMutex
	currentTranslator Translator = dictTranslator{lang: "en"}
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := catalogs[lang]; !ok {
		lang = "en"
	}
	SetTranslator(dictTranslator{lang: lang})
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version). nil restores the English dictionary.
func SetTranslator(tr Translator) {
	if tr == nil {
		tr = dictTranslator{lang: "en"}
	}
	mu.Lock()
	currentTranslator = tr
	mu.Unlock()
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}
