package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	cases := map[string]string{
		"ProcessingJob": "`ProcessingJob`",
		"refinedCell_a": "`refinedCell_a`",
		"order":         "`order`",
		"weird col":     "`weird col`",
		"tick`in`name":  "`tick``in``name`",
		"":              "``",
	}

	for input, want := range cases {
		if got := QuoteIdentifier(input); got != want {
			t.Errorf("QuoteIdentifier(%q) = %q, want %q", input, got, want)
		}
	}
}
