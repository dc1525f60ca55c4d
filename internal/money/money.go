// Package money implements the surcharge arithmetic used for case-file
// payments: the 5% cassa contribution and the 22% IVA charged to the
// committente.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative or non-numeric currency input.
var ErrInvalidAmount = errors.New("invalid amount")

// Surcharge rates.
var (
	CassaRate = decimal.RequireFromString("0.05")
	IVARate   = decimal.RequireFromString("0.22")
)

// Role identifies the counterparty an amount belongs to.
type Role string

const (
	RoleCommittente   Role = "Committente"
	RoleCollaboratore Role = "Collaboratore"
	RoleFirmatario    Role = "Firmatario"
)

// Roles lists every payer role in display order.
var Roles = []Role{RoleCommittente, RoleCollaboratore, RoleFirmatario}

// AppliesIVA reports whether IVA can be charged to the role.
func (r Role) AppliesIVA() bool {
	return r == RoleCommittente
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCommittente, RoleCollaboratore, RoleFirmatario:
		return true
	}
	return false
}

// factor returns the multiplier that turns a net amount into a gross one.
// Cassa is applied first, then IVA on the cassa-inclusive amount.
func factor(role Role, applyCassa, applyIVA bool) decimal.Decimal {
	f := decimal.NewFromInt(1)
	if applyCassa {
		f = f.Mul(decimal.NewFromInt(1).Add(CassaRate))
	}
	if applyIVA && role.AppliesIVA() {
		f = f.Mul(decimal.NewFromInt(1).Add(IVARate))
	}
	return f
}

// GrossFromNet applies the surcharges for role to net. The result is rounded
// once to two decimals, half up.
func GrossFromNet(role Role, net decimal.Decimal, applyCassa, applyIVA bool) (decimal.Decimal, error) {
	if err := check(role, net); err != nil {
		return decimal.Zero, err
	}
	if net.IsZero() {
		return decimal.Zero, nil
	}
	return net.Mul(factor(role, applyCassa, applyIVA)).Round(2), nil
}

// NetFromGross strips the surcharges for role from gross. It is the inverse
// of GrossFromNet to within one cent.
func NetFromGross(role Role, gross decimal.Decimal, applyCassa, applyIVA bool) (decimal.Decimal, error) {
	if err := check(role, gross); err != nil {
		return decimal.Zero, err
	}
	if gross.IsZero() {
		return decimal.Zero, nil
	}
	return gross.Div(factor(role, applyCassa, applyIVA)).Round(2), nil
}

func check(role Role, amount decimal.Decimal) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount.String())
	}
	return nil
}

// Parse reads a currency amount typed by a user. Both "1.234,56" and
// "1234.56" are accepted; an empty string is zero. Without a comma, dots
// that all separate groups of exactly three digits are thousands
// separators, so "1.234" is 1234 while "12.5" stays 12.5.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "€")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") || thousandsGrouped(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	return d, nil
}

// thousandsGrouped reports whether s looks like "1.234" or "12.345.678".
func thousandsGrouped(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) < 2 || groups[0] == "" || groups[0][0] == '0' || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// Format renders an amount the way the studio prints it, e.g. "€ 1.234,56".
func Format(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("€ %s%s,%s", sign, b.String(), frac)
}
