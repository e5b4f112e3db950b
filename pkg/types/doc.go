// Package types provides shared type definitions for llmdiag.
//
// This package defines the domain types that flow through the analysis cycle,
// from an untrusted model response to a display-ready diagnostic.
//
// # Core Types
//
// Fingerprint identifies a document's content at a point in time:
//
//	var id types.DocumentID = "/src/app/main.go"
//	fp := fingerprint.Compute(text)
//	log.Printf("%s at %s", id.BaseName(), fp.Short())
//
// Issue is a validated finding reported by the analysis model. Issues are
// produced by the validator package only:
//
//	issue := types.Issue{
//	    FileName:    "main.go",
//	    Line:        12,
//	    Column:      5,
//	    Length:      8,
//	    Message:     "possible nil dereference",
//	    LineContent: "    return cfg.Name",
//	}
//
// ReconciledIssue is an Issue whose line has been checked against the current
// document content and possibly moved:
//
//	r := types.ReconciledIssue{Issue: issue, OriginalLine: 12, Status: types.StatusRelocated}
//
// # Validation
//
// Issue implements Validate so that stores and adapters can assert the
// invariant before persisting:
//
//	if err := issue.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Diagnostics
//
// Diagnostic is the rendered form handed to editors. Ranges are 0-based, while
// issue lines and columns are 1-based:
//
//	d := types.NewDiagnostic(r)
//	// d.Range.StartLine == r.Line-1
package types
