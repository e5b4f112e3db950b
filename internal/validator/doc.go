// Package validator turns raw model output into issues.
//
// Model output is untrusted text. Validate strips an optional markdown fence,
// decodes JSON, requires a top-level array and checks every element on its
// own. Elements that fail are dropped and reported; the rest are returned in
// their original order:
//
//	res := validator.Validate(raw, validator.WithSource("main.go"))
//	if !res.OK() {
//	    // whole response rejected: res.Err is ErrNotJSON or ErrNotArray
//	}
//	for _, issue := range res.Issues {
//	    ...
//	}
//
// An element must carry fileName, line, column, length, message and
// lineContent. line, column and length must be integers >= 1 and message must
// be non-blank; it is trimmed. lineContent is kept verbatim.
package validator
