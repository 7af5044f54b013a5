package domain

import (
	"strings"
	"unicode"
)

// Identity is the acting user, constructed once at login and passed
// explicitly into board and service calls. Core logic never reads ambient
// session state.
type Identity struct {
	Email       string
	DisplayName string
	OrgUnit     string
	Title       string
	Editor      bool
	Monitor     bool
}

// EditorOrgUnit is the unit whose members triage the board.
const EditorOrgUnit = "İŞ VE SÜREÇ GELİŞTİRME"

// TurkishUpper folds a string with Turkish casing rules, the comparison the
// login flow and the monitor view use for display names and org units.
func TurkishUpper(s string) string {
	return strings.ToUpperSpecial(unicode.TurkishCase, strings.TrimSpace(s))
}

// SameName compares display names under Turkish case folding.
func SameName(a, b string) bool {
	return TurkishUpper(a) == TurkishUpper(b)
}

// Account is a row of the login table.
type Account struct {
	ID           int64
	Email        string
	DisplayName  string
	OrgUnit      string
	Title        string
	PasswordHash string
}
