package dialogue

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"PledgePay/entity"
)

// MaxAmount caps a single donation. Larger gifts go through the finance
// office directly.
const MaxAmount = 480.0

var (
	// ErrCommaDecimal flags "40,00" style input so the payer gets told
	// about the separator specifically instead of a generic rejection.
	ErrCommaDecimal = errors.New("amount uses a comma decimal separator")
	ErrBadAmount    = errors.New("amount is not a valid number")
	ErrAmountRange  = errors.New("amount out of range")
	ErrBadPhone     = errors.New("not a recognisable Zimbabwean phone number")
)

var (
	amountRe     = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	localPhoneRe = regexp.MustCompile(`^0\d{9}$`)
	intlPhoneRe  = regexp.MustCompile(`^263\d{9}$`)
)

// ParseAmount validates a donation amount: plain digits with an optional
// dot and at most two decimals, above zero and at most MaxAmount.
func ParseAmount(text string) (float64, error) {
	text = strings.TrimSpace(text)

	if strings.Contains(text, ",") {
		return 0, ErrCommaDecimal
	}
	if !amountRe.MatchString(text) {
		return 0, ErrBadAmount
	}

	amount, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, ErrBadAmount
	}
	if amount <= 0 || amount > MaxAmount {
		return 0, ErrAmountRange
	}
	return amount, nil
}

// NormalizePayNumber brings a mobile-money number to international form:
// 0XXXXXXXXX becomes 263XXXXXXXXX, 263XXXXXXXXX passes through.
func NormalizePayNumber(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "+")
	text = strings.ReplaceAll(text, " ", "")

	switch {
	case localPhoneRe.MatchString(text):
		return "263" + text[1:], nil
	case intlPhoneRe.MatchString(text):
		return text, nil
	default:
		return "", ErrBadPhone
	}
}

// Suffixes congregations commonly append to their name. Stripped so
// "Harare Central Congregation" and "Harare Central" land in the same
// ledger bucket.
var regionSuffixes = []string{
	"Congregation", "Church", "Assembly", "Chapel",
	"Parish", "Ward", "Branch", "Zone", "District",
}

// NormalizeRegion canonicalizes a congregation name: trimmed, title-cased,
// organizational suffixes and a leading "The " removed.
func NormalizeRegion(text string) string {
	region := titleCase(strings.TrimSpace(text))

	region = strings.TrimPrefix(region, "The ")
	for _, suffix := range regionSuffixes {
		if strings.HasSuffix(region, " "+suffix) {
			region = strings.TrimSuffix(region, " "+suffix)
			break
		}
	}
	return strings.TrimSpace(region)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// BaseDonationTypes are the standing donation purposes, always on the menu
// ahead of any admin-approved custom types.
var BaseDonationTypes = []string{
	"Tithes",
	"Offering",
	"Building Fund",
	"Missions",
	"Welfare",
}

// OtherOption is the trailing menu entry that lets a payer request a
// purpose not yet on the menu.
const OtherOption = "Other"

// DonationMenu builds the full numbered purpose menu: base types, then
// active custom types in insertion order, then "Other".
func DonationMenu(customs []entity.CustomType) []string {
	menu := make([]string, 0, len(BaseDonationTypes)+len(customs)+1)
	menu = append(menu, BaseDonationTypes...)
	for _, t := range customs {
		menu = append(menu, t.Description)
	}
	return append(menu, OtherOption)
}

// RenderMenu formats menu options as a numbered prompt.
func RenderMenu(header string, options []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, opt := range options {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt))
	}
	return b.String()
}

// PickOption resolves a numeric reply against a menu, 1-based.
func PickOption(text string, options []string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(options) {
		return "", false
	}
	return options[n-1], true
}
