// Package log provides slog loggers that mask sensitive information.
//
// The SecureHandler wraps any slog.Handler and masks:
//   - credentials named by the attribute key (passwords, tokens, API keys,
//     cookies, proxy settings, contact e-mail addresses)
//   - values that look like credentials (bearer and basic auth headers,
//     JWTs, long API keys, bare e-mail addresses)
//   - the password part of URLs, keeping the user name and host
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Info("harvesting", "feed", feedURL, "proxy", proxyURL) // proxy is masked
//
// NewLogger writes text to terminals and JSON everywhere else.
package log
