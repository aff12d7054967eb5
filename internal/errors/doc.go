// Package errors provides coded, actionable errors for bidictl.
//
// Every error code maps to a category, a short message, a longer detail
// and a documentation link. Codes are grouped by range:
//   - E060-E079: protocol and connection failures
//   - E120-E139: configuration file problems
//   - E140-E159: command line usage
//
// # Usage
//
//	err := errors.New("E121").
//	    WithLocation("bidi.toml", 4, 9).
//	    WithSuggestion("Durations need a unit, for example \"30s\"")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E121: Config file could not be parsed
//	//
//	//   bidi.toml:4:9
//	//
//	//     3 │ [transport]
//	//   → 4 │ timeout = 30
//	//       │         ^
//	//
//	//   Hint: Durations need a unit, for example "30s"
//	//
//	//   Learn more: https://webdriverbidi.dev/docs/errors/E121
//
// FromTransport maps errors returned by the transport and protocol
// packages to codes so the CLI can print them the same way.
package errors
