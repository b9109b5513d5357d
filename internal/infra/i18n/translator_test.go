//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"

	"coupon-payments/internal/domain"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: hello\nwelcome_user: hello %s\ncode.DECLINED: declined\ncode.CANCELLED: cancelled"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "hello" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Aiko"); got != "hello Aiko" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("should fall back to the generic decline for unknown codes", func(t *testing.T) {
		if got := translator.Code("SOMETHING_NEW"); got != "declined" {
			t.Errorf("got %q", got)
		}
		if got := translator.Code(domain.CodeCancelled); got != "cancelled" {
			t.Errorf("got %q", got)
		}
	})
}

func TestNewTranslator_FS(t *testing.T) {
	fsys := fstest.MapFS{"locales/xx.yaml": {Data: []byte("a: b")}}
	tr, err := NewTranslator(fsys, "xx")
	if err != nil || tr.T("a") != "b" || tr.Lang() != "xx" {
		t.Fatalf("unexpected translator %v %v", tr, err)
	}
	if _, err := NewTranslator(fsys, "zz"); err == nil {
		t.Error("expected an error for a missing language")
	}
}

func TestEmbeddedLocales_CoverEveryCode(t *testing.T) {
	codes := []string{
		domain.CodeInvalidIntent, domain.CodeInvalidProvider, domain.CodeInvalidAmount,
		domain.CodeIntentIDTooLong, domain.CodeIntentIDNotNumeric, domain.CodeCallbackURLTooLong,
		domain.CodeDeclined, domain.CodeCancelled, domain.CodeNetworkError, domain.CodeTimeout,
		domain.CodeExpired, domain.CodeProviderError, domain.CodeMissingRequiredField,
		domain.CodeMalformedInput, domain.CodeFieldTooLong, domain.CodeCardRejected,
		domain.CodeSessionExpired, domain.CodeIntentNotFound, domain.CodeIntegrityMismatch,
	}
	for _, lang := range []string{"en", "ja"} {
		tr, err := NewTranslator(LocalesFS, lang)
		if err != nil {
			t.Fatalf("%s: %v", lang, err)
		}
		for _, c := range codes {
			if got := tr.T("code." + c); got == "code."+c {
				t.Errorf("%s: missing translation for %s", lang, c)
			}
		}
	}
}
