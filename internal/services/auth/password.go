// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords = loadCommonPasswords()

func loadCommonPasswords() map[string]struct{} {
	set := make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return set
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pw := strings.ToLower(strings.TrimSpace(scanner.Text())); pw != "" {
			set[pw] = struct{}{}
		}
	}
	return set
}

// Password rule codes.
const (
	RuleMinLength   = "min_length"
	RuleNumeric     = "entirely_numeric"
	RuleCommon      = "common_password"
	RuleTooSimilar  = "too_similar"
	DefaultMinChars = 12
)

// WeakPasswordError lists every rule a password broke. It matches
// ErrWeakPassword.
type WeakPasswordError struct {
	Rules     []string
	MinLength int
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%v: %s", ErrWeakPassword, strings.Join(e.Rules, ", "))
}

// Is makes errors.Is(err, ErrWeakPassword) match.
func (e *WeakPasswordError) Is(target error) bool {
	return target == ErrWeakPassword
}

// PasswordPolicy decides which staff passwords are acceptable.
type PasswordPolicy struct {
	MinLength    int
	RejectCommon bool
	// RejectSimilar rejects passwords close to the staff member's email or name.
	RejectSimilar bool
}

// DefaultPasswordPolicy returns the policy used for staff accounts.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     DefaultMinChars,
		RejectCommon:  true,
		RejectSimilar: true,
	}
}

// Check returns nil for an acceptable password, otherwise a
// *WeakPasswordError. attributes are personal values the password must
// not resemble.
func (p PasswordPolicy) Check(password string, attributes ...string) error {
	var rules []string

	if len([]rune(password)) < p.MinLength {
		rules = append(rules, RuleMinLength)
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		rules = append(rules, RuleNumeric)
	}
	if p.RejectCommon {
		if _, common := commonPasswords[strings.ToLower(password)]; common {
			rules = append(rules, RuleCommon)
		}
	}
	if p.RejectSimilar && resembles(password, attributes) {
		rules = append(rules, RuleTooSimilar)
	}

	if len(rules) == 0 {
		return nil
	}
	return &WeakPasswordError{Rules: rules, MinLength: p.MinLength}
}

// resembles reports whether password contains, is contained in, or shares
// most characters in order with any attribute. Email attributes are
// compared by their local part too.
func resembles(password string, attributes []string) bool {
	pw := strings.ToLower(password)
	for _, attr := range attributes {
		candidates := []string{strings.ToLower(attr)}
		if local, _, ok := strings.Cut(candidates[0], "@"); ok {
			candidates = append(candidates, local)
		}
		for _, a := range candidates {
			if len(a) < 3 || pw == "" {
				continue
			}
			if strings.Contains(pw, a) || strings.Contains(a, pw) {
				return true
			}
			if float64(lcsLength(pw, a))/float64(max(len(pw), len(a))) > 0.7 {
				return true
			}
		}
	}
	return false
}

func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
