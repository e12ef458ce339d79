package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"ru-RU,ru;q=0.9", language.Russian},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLocaleTag(t *testing.T) {
	tests := []struct {
		lcAll, lang string
		expected    language.Tag
	}{
		{"", "ru_RU.UTF-8", language.Russian},
		{"en_GB.UTF-8", "ru_RU.UTF-8", language.English},
		{"", "C", language.English},
		{"", "", language.English},
		{"", "de_DE@euro", language.English},
	}
	for _, tt := range tests {
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LC_MESSAGES", "")
		t.Setenv("LANG", tt.lang)

		base, _ := LocaleTag().Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "LC_ALL=%q LANG=%q", tt.lcAll, tt.lang)
	}
}

func TestCatalog(t *testing.T) {
	en := NewPrinter(language.English)
	ru := NewPrinter(language.Russian)

	assert.Equal(t, "History cleared.\n", en.Sprintf(MsgHistoryCleared))
	assert.Equal(t, "История очищена.\n", ru.Sprintf(MsgHistoryCleared))
	assert.Equal(t, "Rolled back chg_1: x\n", en.Sprintf(MsgRolledBack, "chg_1", "x"))
	assert.Equal(t, "Откачено chg_1: x\n", ru.Sprintf(MsgRolledBack, "chg_1", "x"))
}

func TestPrinterContext(t *testing.T) {
	ru := NewPrinter(language.Russian)
	ctx := WithPrinter(context.Background(), ru)
	assert.Same(t, ru, GetPrinter(ctx))
	assert.NotNil(t, GetPrinter(context.Background()))
}
