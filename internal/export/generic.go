package export

import (
	"encoding/csv"
	"io"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/facturio/facturio/internal/accounting"
)

var genericHeader = []string{
	"date", "journal", "account", "account_label", "reference", "label", "debit", "credit",
}

// foldDiacritics strips combining marks so legacy accounting targets that
// only accept ASCII-ish text still import labels like "Reglement".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	out, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		return s
	}
	return out
}

// RenderGeneric writes the simpler comma-separated layout selected when the
// tenant's external software does not read the fiscal format.
func RenderGeneric(w io.Writer, lines []accounting.JournalLine) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(genericHeader); err != nil {
		return err
	}
	for _, l := range lines {
		if err := writer.Write([]string{
			l.EntryDate.Format("2006-01-02"),
			l.JournalCode,
			l.AccountCode,
			fold(l.AccountLabel),
			l.Reference,
			fold(l.Label),
			l.Debit.StringFixed(2),
			l.Credit.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
