package password

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Policy defines the requirements for password complexity
type Policy struct {
	MinLength          int
	MaxLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
	DisallowCommonPwds bool
	MaxRepeatedChars   int
}

// DefaultPolicy only bounds the length and rejects the most common passwords.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:          5,
		MaxLength:          128,
		DisallowCommonPwds: true,
	}
}

// PolicyChecker checks candidate passwords against a Policy
type PolicyChecker struct {
	policy          *Policy
	commonPasswords map[string]bool
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// NewPolicyChecker creates a checker. A nil policy means DefaultPolicy.
func NewPolicyChecker(policy *Policy) *PolicyChecker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &PolicyChecker{
		policy:          policy,
		commonPasswords: defaultCommonPasswords(),
	}
}

// Policy returns the policy the checker enforces
func (pc *PolicyChecker) Policy() Policy {
	return *pc.policy
}

// Check verifies that a password meets the complexity requirements
func (pc *PolicyChecker) Check(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	length := utf8.RuneCountInString(password)
	if length < pc.policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", pc.policy.MinLength)
	}
	if pc.policy.MaxLength > 0 && length > pc.policy.MaxLength {
		return fmt.Errorf("password must be at most %d characters long", pc.policy.MaxLength)
	}
	if pc.policy.RequireUppercase && !upperRe.MatchString(password) {
		return errors.New("password must contain at least one uppercase letter")
	}
	if pc.policy.RequireLowercase && !lowerRe.MatchString(password) {
		return errors.New("password must contain at least one lowercase letter")
	}
	if pc.policy.RequireDigit && !digitRe.MatchString(password) {
		return errors.New("password must contain at least one digit")
	}
	if pc.policy.RequireSpecialChar && !specialRe.MatchString(password) {
		return errors.New("password must contain at least one special character")
	}
	if pc.policy.DisallowCommonPwds && pc.commonPasswords[strings.ToLower(password)] {
		return errors.New("password is too common, please choose a more secure password")
	}
	if pc.policy.MaxRepeatedChars > 0 && hasRepeatedChars(password, pc.policy.MaxRepeatedChars) {
		return fmt.Errorf("password cannot contain more than %d consecutive repeated characters", pc.policy.MaxRepeatedChars)
	}
	return nil
}

// hasRepeatedChars reports a run of more than max identical runes.
func hasRepeatedChars(password string, max int) bool {
	run := 0
	var prev rune = -1
	for _, r := range password {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > max {
			return true
		}
	}
	return false
}

func defaultCommonPasswords() map[string]bool {
	commonPwds := []string{
		"password", "123456", "12345678", "qwerty", "admin",
		"welcome", "login", "abc123", "letmein", "monkey",
		"12345", "123456789", "iloveyou", "111111", "passw0rd",
	}
	result := make(map[string]bool, len(commonPwds))
	for _, pwd := range commonPwds {
		result[pwd] = true
	}
	return result
}
