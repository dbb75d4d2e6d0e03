// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Site configurations carry cookies and request headers, and crawled URLs
// may embed credentials or session tokens. The SecureHandler masks:
//   - attributes named like secrets (cookie, authorization, token, password)
//   - string values that look like secrets (bearer tokens, JWTs, keys)
//   - the user info and sensitive query parameters of logged URLs
//   - secret entries of header maps, leaving other headers readable
//
// Even in verbose mode, sensitive values are masked so logs can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("request sent",
//	    "cookie", "session=abc123", // logged as ***REDACTED***
//	    "url", "https://shop.example/cart?sid=42", // sid is redacted
//	)
package log
