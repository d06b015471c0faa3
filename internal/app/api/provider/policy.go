package provider

import "strings"

// Policy decides the provider attempt order for one job. It is a closed set:
// UsePrimary or UseFallbackThenPrimary.
type Policy interface {
	// Attempts returns the providers to try, in order. A nil fallback is skipped.
	Attempts(primary, fallback TranscriptionProvider) []TranscriptionProvider
	String() string
	policy()
}

// UsePrimary sends the request to the primary provider only.
type UsePrimary struct{}

func (UsePrimary) Attempts(primary, _ TranscriptionProvider) []TranscriptionProvider {
	return []TranscriptionProvider{primary}
}

func (UsePrimary) String() string { return "use_primary" }
func (UsePrimary) policy()        {}

// UseFallbackThenPrimary tries the fallback-capable provider first and retries
// once against the primary provider on failure.
type UseFallbackThenPrimary struct{}

func (UseFallbackThenPrimary) Attempts(primary, fallback TranscriptionProvider) []TranscriptionProvider {
	if fallback == nil {
		return []TranscriptionProvider{primary}
	}
	return []TranscriptionProvider{fallback, primary}
}

func (UseFallbackThenPrimary) String() string { return "use_fallback_then_primary" }
func (UseFallbackThenPrimary) policy()        {}

// SelectPolicy picks UsePrimary when the caller forces it or the language is the
// platform default, and UseFallbackThenPrimary otherwise.
func SelectPolicy(language, defaultLanguage string, preferPrimary bool) Policy {
	if preferPrimary || language == "" || strings.EqualFold(language, defaultLanguage) {
		return UsePrimary{}
	}
	return UseFallbackThenPrimary{}
}
