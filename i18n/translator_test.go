package i18n

import "testing"

func TestTranslator_DefaultAndJapanese(t *testing.T) {
	// default is en
	if msg := T("too_small", map[string]string{"min": "18"}); msg != "must be at least 18" {
		t.Fatalf("expected an interpolated english message, got %q", msg)
	}

	SetLanguage("ja")
	if msg := T("too_small", map[string]string{"min": "18"}); msg != "18 以上を入力してください" {
		t.Fatalf("expected japanese message, got %q", msg)
	}

	// unknown languages fall back to english
	SetLanguage("fr")
	if msg := T("required", nil); msg != "required" {
		t.Fatalf("expected english fallback, got %q", msg)
	}

	// reset to en
	SetLanguage("en")
}

func TestTranslator_UnknownCodeIsReturnedVerbatim(t *testing.T) {
	if msg := T("no_such_code", nil); msg != "no_such_code" {
		t.Fatalf("unknown code should echo, got %q", msg)
	}
}

type upper struct{}

func (upper) Message(code string, _ map[string]string) string { return "X:" + code }

func TestSetTranslator_CustomAndReset(t *testing.T) {
	SetTranslator(upper{})
	if msg := T("required", nil); msg != "X:required" {
		t.Fatalf("custom translator not used, got %q", msg)
	}
	SetTranslator(nil)
	if msg := T("required", nil); msg != "required" {
		t.Fatalf("nil should restore the default, got %q", msg)
	}
}
