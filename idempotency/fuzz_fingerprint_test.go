package idempotency

import (
	"encoding/json"
	"testing"
)

// FuzzFingerprint checks that any field values yield a stable, valid JSON
// fingerprint with the schema's field order.
func FuzzFingerprint(f *testing.F) {
	f.Add("1", "222", "100")
	f.Add("", "", "")
	f.Add("0x10", "<&>", "1e21")
	f.Add("Infinity", "\xff\xfe", " 7 ")

	f.Fuzz(func(t *testing.T, bank, account, amount string) {
		fields := Fields{
			"fromBankId":        bank,
			"toBankId":          bank,
			"fromAccountNumber": account,
			"toAccountNumber":   account,
			"amount":            amount,
		}
		got := Fingerprint(fields)
		if !json.Valid([]byte(got)) {
			t.Fatalf("fingerprint is not JSON: %s", got)
		}
		if again := Fingerprint(fields); again != got {
			t.Fatalf("fingerprint not deterministic: %s vs %s", got, again)
		}

		var decoded map[string]any
		if err := json.Unmarshal([]byte(got), &decoded); err != nil {
			t.Fatal(err)
		}
		if len(decoded) != len(TransferSchema) {
			t.Errorf("got %d fields, want %d", len(decoded), len(TransferSchema))
		}
	})
}
