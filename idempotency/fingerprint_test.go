package idempotency

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintCoercesNumbers(t *testing.T) {
	base := Fingerprint(Fields{
		"fromBankId":        1,
		"toBankId":          2,
		"fromAccountNumber": "111",
		"toAccountNumber":   "222",
		"amount":            100,
	})
	for name, amount := range map[string]any{
		"string":      "100",
		"float":       100.0,
		"padded":      " 100 ",
		"json number": json.Number("100"),
		"exponent":    "1e2",
		"float32":     float32(100),
		"uint":        uint16(100),
	} {
		t.Run(name, func(t *testing.T) {
			got := Fingerprint(Fields{
				"fromBankId":        "1",
				"toBankId":          2.0,
				"fromAccountNumber": "111",
				"toAccountNumber":   "222",
				"amount":            amount,
			})
			assert.Equal(t, base, got)
		})
	}
}

func TestFingerprintCanonicalShape(t *testing.T) {
	got := Fingerprint(Fields{
		"amount":            "100",
		"toAccountNumber":   "222",
		"fromAccountNumber": "111",
		"toBankId":          2,
		"fromBankId":        1,
		"password":          "secret",
		"scheduledAt":       "2026-01-01T10:00",
	})
	assert.Equal(t, `{"fromBankId":1,"toBankId":2,"fromAccountNumber":"111","toAccountNumber":"222","amount":100}`, got)
}

func TestFingerprintDiffersOnSemanticChange(t *testing.T) {
	a := Fingerprint(Fields{"fromBankId": 1, "toBankId": 2, "fromAccountNumber": "111", "toAccountNumber": "222", "amount": 100})
	b := Fingerprint(Fields{"fromBankId": 1, "toBankId": 2, "fromAccountNumber": "111", "toAccountNumber": "222", "amount": 101})
	c := Fingerprint(Fields{"fromBankId": 1, "toBankId": 2, "fromAccountNumber": "111", "toAccountNumber": "223", "amount": 100})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFingerprintIgnoresNonSemanticFields(t *testing.T) {
	a := Fingerprint(Fields{"toAccountNumber": "222", "amount": 5, "password": "one"})
	b := Fingerprint(Fields{"toAccountNumber": "222", "amount": 5, "password": "two", "memo": "x"})
	assert.Equal(t, a, b)
}

func TestFingerprintMissingAndUnparsable(t *testing.T) {
	got := Fingerprint(Fields{
		"toBankId":          "abc",
		"amount":            "",
		"fromAccountNumber": nil,
		"toAccountNumber":   0,
	})
	assert.Equal(t, `{"fromBankId":null,"toBankId":null,"fromAccountNumber":"","toAccountNumber":"","amount":0}`, got)
}

func TestFingerprintNumberEdgeCases(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{math.NaN(), "null"},
		{math.Inf(1), "null"},
		{"Infinity", "null"},
		{"0x10", "16"},
		{"0x1p4", "null"},
		{"1_000", "null"},
		{"12abc", "null"},
		{true, "1"},
		{false, "0"},
		{-0.0, "0"},
		{100.5, "100.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{0.000001, "0.000001"},
		{struct{}{}, "null"},
	}
	for _, tc := range cases {
		got := Schema{{Name: "n", Kind: Number}}.Fingerprint(Fields{"n": tc.in})
		assert.Equal(t, `{"n":`+tc.want+`}`, got, "input %#v", tc.in)
	}
}

func TestFingerprintTextEdgeCases(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"abc", `"abc"`},
		{false, `""`},
		{true, `"true"`},
		{0, `""`},
		{12, `"12"`},
		{1.5, `"1.5"`},
		{"<&>", `"<&>"`},
		{`q"uote`, `"q\"uote"`},
		{"a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"tab\there\n", `"tab\there\n"`},
		{"\x01\x1f", `"\u0001\u001f"`},
		{`back\slash`, `"back\\slash"`},
		{"bad\xffbyte", "\"bad\ufffdbyte\""},
	}
	for _, tc := range cases {
		got := Schema{{Name: "s", Kind: Text}}.Fingerprint(Fields{"s": tc.in})
		assert.Equal(t, `{"s":`+tc.want+`}`, got, "input %#v", tc.in)
	}
}

func TestAccountSchemaFingerprint(t *testing.T) {
	got := AccountSchema.Fingerprint(Fields{"bankId": "3", "accountType": "SAVINGS", "balance": 0, "password": "x"})
	assert.Equal(t, `{"bankId":3,"accountType":"SAVINGS","balance":0}`, got)
}
