package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"modbot/internal/session"
)

const (
	lettersAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitsAlphabet  = "0123456789"
	symbolsAlphabet = "!@#$%^&*()-_=+[]{}|;:,.<>?"
	ambiguousChars  = "0O1lI"

	passwordStatsKey = "password_stats"
)

type passwordArgs struct {
	Length           int  `json:"length,omitempty" jsonschema:"description=Password length (4-128),default=12"`
	IncludeSymbols   bool `json:"include_symbols,omitempty" jsonschema:"description=Include special characters,default=true"`
	IncludeNumbers   bool `json:"include_numbers,omitempty" jsonschema:"description=Include digits,default=true"`
	ExcludeAmbiguous bool `json:"exclude_ambiguous,omitempty" jsonschema:"description=Leave out look-alike characters (0 O 1 l I),default=true"`
}

// PasswordStats is kept in the session scratch space.
type PasswordStats struct {
	Generated   int `json:"generated"`
	TotalLength int `json:"total_length"`
}

func password(ctx context.Context, sc *session.Context, args passwordArgs) (string, error) {
	if args.Length < 4 || args.Length > 128 {
		return "", fmt.Errorf("length must be between 4 and 128, got %d", args.Length)
	}

	alphabet := lettersAlphabet
	if args.IncludeNumbers {
		alphabet += digitsAlphabet
	}
	if args.IncludeSymbols {
		alphabet += symbolsAlphabet
	}
	if args.ExcludeAmbiguous {
		alphabet = strings.Map(func(r rune) rune {
			if strings.ContainsRune(ambiguousChars, r) {
				return -1
			}
			return r
		}, alphabet)
	}

	pw, err := gonanoid.Generate(alphabet, args.Length)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	stats, _ := sc.ScratchGet(passwordStatsKey, PasswordStats{}).(PasswordStats)
	stats.Generated++
	stats.TotalLength += args.Length
	sc.ScratchSet(passwordStatsKey, stats)

	return fmt.Sprintf("Password: %s\nStrength: %s\nLength: %d\nGenerated this session: %d",
		pw, passwordStrength(pw, args.IncludeNumbers, args.IncludeSymbols), args.Length, stats.Generated), nil
}

func passwordStrength(pw string, numbers, symbols bool) string {
	score := 0
	switch {
	case len(pw) >= 12:
		score += 2
	case len(pw) >= 8:
		score++
	}
	if numbers {
		score++
	}
	if symbols {
		score++
	}
	if strings.IndexFunc(pw, unicode.IsUpper) >= 0 {
		score++
	}
	if strings.IndexFunc(pw, unicode.IsLower) >= 0 {
		score++
	}
	switch {
	case score >= 6:
		return "very strong"
	case score >= 4:
		return "strong"
	case score >= 2:
		return "medium"
	}
	return "weak"
}
