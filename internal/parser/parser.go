// Package parser turns raw WhatsApp message text into structured commands and
// expense drafts. It is pure: no I/O, no collaborator calls.
package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/domain"
)

var (
	expenseLineRe = regexp.MustCompile(`^\$?\s*([\d.,]+)\s+(.+)$`)
	paymentRe     = regexp.MustCompile(`(?i)^pago\s+\$?\s*([\d.,]+)\s*(.*)$`)
	selfExpenseRe = regexp.MustCompile(`(?i)^propio\s+\$?\s*([\d.,]+)\s+(.+)$`)
	tagRe         = regexp.MustCompile(`#(\S+)`)
	bareTagRe     = regexp.MustCompile(`^#(\S+)$`)
)

var affirmatives = map[string]bool{
	"si": true, "sí": true, "ok": true, "dale": true, "yes": true, "confirmar": true,
}

var negatives = map[string]bool{
	"no": true, "cancelar": true, "cancel": true,
}

// IsAffirmative reports whether text, as a whole message, confirms a pending
// draft.
func IsAffirmative(text string) bool {
	return affirmatives[normalize(text)]
}

// IsNegative reports whether text, as a whole message, cancels a pending
// draft.
func IsNegative(text string) bool {
	return negatives[normalize(text)]
}

// BareTag matches a message that is exactly one project tag ("#flores3b") and
// nothing else. The tag is returned lower-cased.
func BareTag(text string) (string, bool) {
	m := bareTagRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// FirstTag extracts the first "#tag" token anywhere in text, lower-cased.
func FirstTag(text string) (string, bool) {
	m := tagRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ParseAmount normalizes an Argentine-format amount string: "." is the
// thousands separator and "," the decimal separator, so "1.234,56" parses to
// 1234.56. Anything that does not parse to a positive number is rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
	s = strings.Replace(s, ",", ".", 1)
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.ErrUnparseable
	}
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return amount, nil
}

// FormatAmount renders an amount back in the same convention ParseAmount
// reads: "$" prefix, "." thousands groups, "," before any fractional part.
// Integral amounts carry no decimals.
func FormatAmount(amount decimal.Decimal) string {
	s := amount.String()

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("$")
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(".")
		}
		b.WriteRune(digit)
	}
	if fracPart != "" {
		b.WriteString(",")
		b.WriteString(fracPart)
	}
	return b.String()
}

// CapitalizeFirst upper-cases the first rune of s.
func CapitalizeFirst(s string) string {
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// ExpenseLine is the result of parsing a bare expense message:
// "$<amount> <title> [#tag] [c:<category>] [d:<description>]".
type ExpenseLine struct {
	Amount      decimal.Decimal
	Title       string
	Tag         string // lower-cased, empty when absent
	RawCategory string // as typed, empty when absent
	Description string
}

// ParseExpenseLine parses the generic expense grammar. The tag, category and
// description markers may appear in any order after the amount; whatever text
// remains is the title. A missing amount, non-positive amount or empty title
// makes the whole message unparseable.
func ParseExpenseLine(text string) (*ExpenseLine, error) {
	m := expenseLineRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, domain.ErrUnparseable
	}

	amount, err := ParseAmount(m[1])
	if err != nil {
		return nil, domain.ErrUnparseable
	}

	rest := strings.TrimSpace(m[2])

	line := &ExpenseLine{Amount: amount}

	if tag, ok := FirstTag(rest); ok {
		line.Tag = tag
		rest = strings.TrimSpace(tagRe.ReplaceAllString(rest, ""))
	}

	var rawCat string
	rawCat, rest = cutMarker(rest, "c:", "d:")
	line.RawCategory = rawCat

	var desc string
	desc, rest = cutMarker(rest, "d:")
	line.Description = desc

	line.Title = CapitalizeFirst(strings.TrimSpace(rest))
	if line.Title == "" {
		return nil, domain.ErrUnparseable
	}
	return line, nil
}

// cutMarker extracts the value of a "x:" marker from rest. The value runs
// until the first of the stop markers or the end of the string. Returns the
// trimmed value and rest with the marker span removed.
func cutMarker(rest, marker string, stops ...string) (string, string) {
	lower := strings.ToLower(rest)
	start := strings.Index(lower, marker)
	if start < 0 {
		return "", rest
	}

	end := len(rest)
	for _, stop := range stops {
		if i := strings.Index(lower[start+len(marker):], stop); i >= 0 {
			if candidate := start + len(marker) + i; candidate < end {
				end = candidate
			}
		}
	}

	value := strings.TrimSpace(rest[start+len(marker) : end])
	remainder := strings.TrimSpace(rest[:start] + rest[end:])
	return value, remainder
}

// PaymentCommand is "PAGO $<amount> [concept] #tag": a client payment,
// committed without a confirmation step.
type PaymentCommand struct {
	Amount decimal.Decimal
	Title  string
	Tag    string
}

// hasKeyword reports whether text is the bare keyword or starts with it. Bare
// keywords still dispatch so the user gets the command's format hint instead
// of the generic unparseable reply.
func hasKeyword(text, keyword string) bool {
	n := normalize(text)
	return n == keyword || strings.HasPrefix(n, keyword+" ")
}

// IsPaymentCommand reports whether text starts with the payment keyword,
// regardless of whether the rest of it is well formed.
func IsPaymentCommand(text string) bool {
	return hasKeyword(text, "pago")
}

// ParsePaymentCommand validates and extracts a PAGO command. Errors
// distinguish a malformed line (ErrUnparseable), a bad amount
// (ErrInvalidAmount) and a missing tag (ErrMissingTag) so the caller can reply
// with the right hint.
func ParsePaymentCommand(text string) (*PaymentCommand, error) {
	m := paymentRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, domain.ErrUnparseable
	}

	amount, err := ParseAmount(m[1])
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}

	rest := strings.TrimSpace(m[2])
	tag, ok := FirstTag(rest)
	if !ok {
		return nil, domain.ErrMissingTag
	}

	title := strings.TrimSpace(tagRe.ReplaceAllString(rest, ""))
	if title == "" {
		title = "Pago del cliente"
	}

	return &PaymentCommand{Amount: amount, Title: title, Tag: tag}, nil
}

// SelfExpenseCommand is "PROPIO $<amount> <title> #tag": an expense the
// provider pays out of pocket, never billed to the client.
type SelfExpenseCommand struct {
	Amount decimal.Decimal
	Title  string
	Tag    string
}

func IsSelfExpenseCommand(text string) bool {
	return hasKeyword(text, "propio")
}

// ParseSelfExpenseCommand validates and extracts a PROPIO command. Unlike
// PAGO, the title is mandatory.
func ParseSelfExpenseCommand(text string) (*SelfExpenseCommand, error) {
	m := selfExpenseRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, domain.ErrUnparseable
	}

	amount, err := ParseAmount(m[1])
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}

	rest := strings.TrimSpace(m[2])
	tag, ok := FirstTag(rest)
	if !ok {
		return nil, domain.ErrMissingTag
	}

	title := strings.TrimSpace(tagRe.ReplaceAllString(rest, ""))
	if title == "" {
		return nil, domain.ErrUnparseable
	}

	return &SelfExpenseCommand{Amount: amount, Title: CapitalizeFirst(title), Tag: tag}, nil
}

// LinkCommand is "VINCULAR <code>". The code is upper-cased to match how the
// web app issues them.
type LinkCommand struct {
	Code string
}

func IsLinkCommand(text string) bool {
	return hasKeyword(text, "vincular")
}

func ParseLinkCommand(text string) (*LinkCommand, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return nil, domain.ErrUnparseable
	}
	return &LinkCommand{Code: strings.ToUpper(fields[1])}, nil
}

func IsUnlinkCommand(text string) bool {
	return normalize(text) == "desvincular"
}

func IsHelpCommand(text string) bool {
	n := normalize(text)
	return n == "ayuda" || n == "help"
}

func IsProjectsCommand(text string) bool {
	return normalize(text) == "proyectos"
}

func IsSummaryCommand(text string) bool {
	return hasKeyword(text, "resumen")
}

// ParseSummaryCommand extracts the tag of a "RESUMEN #tag" command.
func ParseSummaryCommand(text string) (string, error) {
	tag, ok := FirstTag(text)
	if !ok {
		return "", domain.ErrMissingTag
	}
	return tag, nil
}
