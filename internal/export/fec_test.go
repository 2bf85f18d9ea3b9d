package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/facturio/facturio/internal/accounting"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleLines() []accounting.JournalLine {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	lettered := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return []accounting.JournalLine{
		{
			JournalCode: "VE", JournalLabel: "Ventes",
			EntryNumber: "FAC-000042", EntryDate: day,
			AccountCode: "411000", AccountLabel: "Clients",
			Reference: "FAC-000042", Label: "Facture FAC-000042",
			Debit: d("295.00"), Credit: d("0.00"),
			Lettering: "A", LetteredAt: &lettered, ValidatedAt: day,
		},
		{
			JournalCode: "VE", JournalLabel: "Ventes",
			EntryNumber: "FAC-000042", EntryDate: day,
			AccountCode: "706000", AccountLabel: "Prestations de services",
			Reference: "FAC-000042", Label: "Facture FAC-000042",
			Debit: d("0.00"), Credit: d("250.00"),
			ValidatedAt: day,
		},
		{
			JournalCode: "VE", JournalLabel: "Ventes",
			EntryNumber: "FAC-000042", EntryDate: day,
			AccountCode: "445710", AccountLabel: "TVA collectee",
			Reference: "FAC-000042", Label: "Facture FAC-000042",
			Debit: d("0.00"), Credit: d("45.00"),
			ValidatedAt: day,
		},
	}
}

func requireLinesEqual(t *testing.T, want, got []accounting.JournalLine) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		require.Equal(t, w.JournalCode, g.JournalCode)
		require.Equal(t, w.JournalLabel, g.JournalLabel)
		require.Equal(t, w.EntryNumber, g.EntryNumber)
		require.True(t, w.EntryDate.Equal(g.EntryDate))
		require.Equal(t, w.AccountCode, g.AccountCode)
		require.Equal(t, w.AccountLabel, g.AccountLabel)
		require.Equal(t, w.Reference, g.Reference)
		require.Equal(t, w.Label, g.Label)
		require.True(t, w.Debit.Equal(g.Debit), "line %d debit", i)
		require.True(t, w.Credit.Equal(g.Credit), "line %d credit", i)
		require.Equal(t, w.Lettering, g.Lettering)
		require.Equal(t, w.LetteredAt == nil, g.LetteredAt == nil)
		if w.LetteredAt != nil {
			require.True(t, w.LetteredAt.Equal(*g.LetteredAt))
		}
		require.True(t, w.ValidatedAt.Equal(g.ValidatedAt))
	}
}

func TestFiscalRoundTrip(t *testing.T) {
	for _, delim := range []Delimiter{DelimiterTab, DelimiterPipe} {
		lines := sampleLines()
		var buf bytes.Buffer
		require.NoError(t, RenderFiscal(&buf, lines, delim))

		parsed, err := ParseFiscal(bytes.NewReader(buf.Bytes()), delim)
		require.NoError(t, err)
		requireLinesEqual(t, lines, parsed)

		// render(parse(x)) == x
		var again bytes.Buffer
		require.NoError(t, RenderFiscal(&again, parsed, delim))
		require.Equal(t, buf.String(), again.String())
	}
}

func TestFiscalRenderIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, RenderFiscal(&a, sampleLines(), DelimiterTab))
	require.NoError(t, RenderFiscal(&b, sampleLines(), DelimiterTab))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestFiscalUsesDecimalComma(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFiscal(&buf, sampleLines(), DelimiterPipe))
	require.Contains(t, buf.String(), "295,00")
	require.NotContains(t, buf.String(), "295.00")
}

func TestFiscalRejectsDelimiterInField(t *testing.T) {
	lines := sampleLines()
	lines[0].Label = "Facture|piege"
	var buf bytes.Buffer
	require.Error(t, RenderFiscal(&buf, lines, DelimiterPipe))
}

func TestFiscalParseRejectsBadHeader(t *testing.T) {
	_, err := ParseFiscal(strings.NewReader("Foo\tBar\n"), DelimiterTab)
	require.Error(t, err)
}

func TestFilterByDate(t *testing.T) {
	lines := sampleLines()
	lines[2].EntryDate = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	got := FilterByDate(lines, from, to)
	require.Len(t, got, 2)
}
