// Package export renders derived journal lines into fiscal and generic
// delimited files. Rendering is pure: the same lines and options always
// produce byte-identical output.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/accounting"
)

// Fiscal column set, fixed and ordered. One header row, then one row per
// journal line.
var fiscalHeader = []string{
	"JournalCode", "JournalLib", "EcritureNum", "EcritureDate",
	"CompteNum", "CompteLib", "PieceRef", "EcritureLib",
	"Debit", "Credit", "EcritureLet", "DateLet", "ValidDate",
}

const fiscalDateLayout = "20060102"

// Delimiter is the column separator of the fiscal file. The target
// authority accepts tab or pipe.
type Delimiter rune

const (
	DelimiterTab  Delimiter = '\t'
	DelimiterPipe Delimiter = '|'
)

func (d Delimiter) valid() bool {
	return d == DelimiterTab || d == DelimiterPipe
}

// fiscalAmount renders a decimal with two places and a comma separator, as
// the fiscal format mandates.
func fiscalAmount(v decimal.Decimal) string {
	return strings.Replace(v.StringFixed(2), ".", ",", 1)
}

func parseFiscalAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(s, ",", ".", 1))
}

// RenderFiscal writes the fiscal columnar file for the given lines. Fields
// are written verbatim, without quoting; a field containing the delimiter
// or a line break is an error, never silently mangled.
func RenderFiscal(w io.Writer, lines []accounting.JournalLine, delim Delimiter) error {
	if !delim.valid() {
		return fmt.Errorf("unsupported fiscal delimiter %q", rune(delim))
	}
	sep := string(rune(delim))

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(fiscalHeader, sep) + "\n"); err != nil {
		return err
	}

	for i, l := range lines {
		letteredAt := ""
		if l.LetteredAt != nil {
			letteredAt = l.LetteredAt.Format(fiscalDateLayout)
		}
		fields := []string{
			l.JournalCode,
			l.JournalLabel,
			l.EntryNumber,
			l.EntryDate.Format(fiscalDateLayout),
			l.AccountCode,
			l.AccountLabel,
			l.Reference,
			l.Label,
			fiscalAmount(l.Debit),
			fiscalAmount(l.Credit),
			l.Lettering,
			letteredAt,
			l.ValidatedAt.Format(fiscalDateLayout),
		}
		for _, f := range fields {
			if strings.ContainsAny(f, sep+"\n\r") {
				return fmt.Errorf("line %d: field %q contains the delimiter", i+1, f)
			}
		}
		if _, err := bw.WriteString(strings.Join(fields, sep) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseFiscal reads a fiscal file back into journal lines. Round-trip with
// RenderFiscal is lossless up to amount formatting.
func ParseFiscal(r io.Reader, delim Delimiter) ([]accounting.JournalLine, error) {
	if !delim.valid() {
		return nil, fmt.Errorf("unsupported fiscal delimiter %q", rune(delim))
	}
	sep := string(rune(delim))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fiscal file is empty")
	}
	if got := scanner.Text(); got != strings.Join(fiscalHeader, sep) {
		return nil, fmt.Errorf("unexpected fiscal header %q", got)
	}

	var out []accounting.JournalLine
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if raw == "" {
			continue
		}
		fields := strings.Split(raw, sep)
		if len(fields) != len(fiscalHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", lineNo, len(fiscalHeader), len(fields))
		}

		entryDate, err := time.Parse(fiscalDateLayout, fields[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: entry date: %w", lineNo, err)
		}
		debit, err := parseFiscalAmount(fields[8])
		if err != nil {
			return nil, fmt.Errorf("line %d: debit: %w", lineNo, err)
		}
		credit, err := parseFiscalAmount(fields[9])
		if err != nil {
			return nil, fmt.Errorf("line %d: credit: %w", lineNo, err)
		}
		validatedAt, err := time.Parse(fiscalDateLayout, fields[12])
		if err != nil {
			return nil, fmt.Errorf("line %d: validation date: %w", lineNo, err)
		}
		var letteredAt *time.Time
		if fields[11] != "" {
			t, err := time.Parse(fiscalDateLayout, fields[11])
			if err != nil {
				return nil, fmt.Errorf("line %d: lettering date: %w", lineNo, err)
			}
			letteredAt = &t
		}

		out = append(out, accounting.JournalLine{
			JournalCode:  fields[0],
			JournalLabel: fields[1],
			EntryNumber:  fields[2],
			EntryDate:    entryDate,
			AccountCode:  fields[4],
			AccountLabel: fields[5],
			Reference:    fields[6],
			Label:        fields[7],
			Debit:        debit,
			Credit:       credit,
			Lettering:    fields[10],
			LetteredAt:   letteredAt,
			ValidatedAt:  validatedAt,
		})
	}
	return out, scanner.Err()
}

// FilterByDate keeps lines whose entry date falls inside [from, to],
// preserving order.
func FilterByDate(lines []accounting.JournalLine, from, to time.Time) []accounting.JournalLine {
	var out []accounting.JournalLine
	for _, l := range lines {
		if l.EntryDate.Before(from) || l.EntryDate.After(to) {
			continue
		}
		out = append(out, l)
	}
	return out
}
