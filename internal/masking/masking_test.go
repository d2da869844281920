package masking

import (
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wideText = "今天真是了不起的一天"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john@doe.com", "jo**@doe.com"},
		{"jo@doe.com", "jo@doe.com"},
		{"j@doe.com", "j@doe.com"},
		{"john@doe@com", "john@doe@com"},
		{"john.doe.com", "john.doe.com"},
		{"@@@@@@@@@@", "@@@@@@@@@@"},
		{"@", "@"},
		{"abc@", "abc@"},
		{"@doe.com", "@doe.com"},
		{"abc@d", "ab*@d"},
		{"jonathan.smith@example.org", "jo************@example.org"},
		{"名前テスト@例え.jp", "名前***@例え.jp"},
		{"名前@例え.jp", "名前@例え.jp"},
		{wideText, wideText},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.in))
		})
	}
}

func TestMaskEmailPreservesLength(t *testing.T) {
	for _, in := range []string{"john@doe.com", "abc@d", "名前テスト@例え.jp"} {
		out := MaskEmail(in)
		assert.Equal(t, utf8.RuneCountInString(in), utf8.RuneCountInString(out), in)
	}
}

func TestMaskEmailKeepsInvalidBytes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"\xffbc@d", "\xffb*@d"},
		{"a\xfe\xffz@d", "a\xfe**@d"},
		{"\xff\xfe@d", "\xff\xfe@d"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), "%q", tt.in)
	}
}

func TestMaskPaymentCard(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4111111111111111", "411111******1111"},
		{"4111111111111111111", "411111*********1111"},
		{"41111111111111111111", "41111111111111111111"},
		{"4111111111111", "411111***1111"},
		{"411111111111", "411111111111"},
		{"4111-1111-1111-1111", "4111-1111-1111-1111"},
		{"4111 1111 1111 1111", "4111 1111 1111 1111"},
		{"411111111111111a", "411111111111111a"},
		{"٤١١١١١١١١١١١١١١١", "٤١١١١١١١١١١١١١١١"},
		{wideText, wideText},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := MaskPaymentCard(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, len(tt.in))
		})
	}
}

func TestMaskSSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123-45-6789", "***-**-6789"},
		{"123456789", "*****6789"},
		{"12345678", "12345678"},
		{"a12345678", "a12345678"},
		{"1234567890", "1234567890"},
		{"123-456-789", "123-456-789"},
		{"123-45-67890", "123-45-67890"},
		{" 123-45-6789", " 123-45-6789"},
		{"humphrey", "humphrey"},
		{wideText, wideText},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskSSN(tt.in))
		})
	}
}

func TestMaskingIsStable(t *testing.T) {
	fns := map[string]func(string) string{
		"email": MaskEmail,
		"card":  MaskPaymentCard,
		"ssn":   MaskSSN,
	}
	inputs := []string{
		"john@doe.com", "abc@d", "4111111111111111", "4111111111111",
		"123-45-6789", "123456789", "humphrey", wideText, "",
	}

	for name, fn := range fns {
		for _, in := range inputs {
			once := fn(in)
			assert.Equal(t, once, fn(once), "%s(%q)", name, in)
		}
	}
}

func TestPointerVariants(t *testing.T) {
	t.Run("nil passthrough", func(t *testing.T) {
		assert.Nil(t, MaskEmailPtr(nil))
		assert.Nil(t, MaskPaymentCardPtr(nil))
		assert.Nil(t, MaskSSNPtr(nil))
	})

	t.Run("empty passthrough", func(t *testing.T) {
		empty := ""
		for _, got := range []*string{MaskEmailPtr(&empty), MaskPaymentCardPtr(&empty), MaskSSNPtr(&empty)} {
			require.NotNil(t, got)
			assert.Equal(t, "", *got)
		}
	})

	t.Run("masks value without touching input", func(t *testing.T) {
		in := "john@doe.com"
		got := MaskEmailPtr(&in)
		require.NotNil(t, got)
		assert.Equal(t, "jo**@doe.com", *got)
		assert.Equal(t, "john@doe.com", in)

		card := "4111111111111111"
		assert.Equal(t, "411111******1111", *MaskPaymentCardPtr(&card))

		ssn := "123-45-6789"
		assert.Equal(t, "***-**-6789", *MaskSSNPtr(&ssn))
	})
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if MaskEmail("john@doe.com") != "jo**@doe.com" {
					t.Error("unexpected email mask")
				}
				if MaskSSN("123456789") != "*****6789" {
					t.Error("unexpected ssn mask")
				}
			}
		}()
	}
	wg.Wait()
}
